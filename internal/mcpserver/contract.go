package mcpserver

// CanvasContract describes the coordinate spaces, identity keys, and camera
// semantics that LLM consumers must follow when reading or mutating a canvas.
const CanvasContract = `# canvasd Canvas Contract

Every canvas mutation MUST follow these conventions.

## Coordinate spaces

- **World space** is the infinite canvas plane. Panel and component positions
  are ALWAYS world space.
- **Screen space** is the renderer viewport in pixels.
- The camera maps between them: ` + "`" + `screen = (world + translate) * zoom` + "`" + ` and
  ` + "`" + `world = screen / zoom - translate` + "`" + `.
- Zoom is clamped to the configured range (0.3 to 2.0 by default).

## Identity

- A note id is a plain string WITHOUT ` + "`" + `:` + "`" + ` characters.
- A panel id is unique within its note. ` + "`" + `main` + "`" + ` names the one panel every
  open note has.
- The composite store key is ` + "`" + `<noteId>:<panelId>` + "`" + `. Keys that already
  contain ` + "`" + `:` + "`" + ` pass through unchanged; never build nested keys like
  ` + "`" + `note:note:panel` + "`" + `.

## Panels vs components

- **Panels** are editor surfaces backed by a store record and mirrored to the
  remote persistence API. Deleting one removes its record everywhere.
- **Components** (calculator, timer, ...) live only in the note's layout
  snapshot. The panel store never sees them.

## Camera etiquette

- Prefer ` + "`" + `pan_canvas` + "`" + ` / ` + "`" + `zoom_canvas` + "`" + ` over absolute camera writes; deltas
  applied within one frame interval coalesce into a single downstream update.
- ` + "`" + `center_panel` + "`" + ` computes the translation that puts the panel's rect center
  under the viewport center at the current zoom.
- Connection lines between a parent panel and its branches are DERIVED state.
  They recompute from positions; do not try to store them.

## Placement guidance

- Omit x/y on ` + "`" + `add_component` + "`" + ` to place at the current viewport center.
- The default panel position for a fresh note is (2000, 1500) with an
  800x600 rect; place related entities within a few hundred world units so
  they share a screen at zoom 1.
`
