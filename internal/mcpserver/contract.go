package mcpserver

// CardFormatContract describes the session document format that LLM
// consumers should follow when editing cards.
const CardFormatContract = `# Session Card Format Contract

A session is one Markdown document stored as ` + "`" + `sessions/<session>.md` + "`" + `.
The document is split into cards by a line containing only ` + "`" + `---` + "`" + `.

## Rules

1. **Cards are addressed by index.** Index 0 is the first card. Deleting a
   card shifts every later card down by one, so list the session again after
   a deletion before using indices.
2. **Never write a line containing only ` + "`" + `---` + "`" + ` inside a card.** It would
   split the card in two.
3. **A session always keeps at least one card.** Deleting the last card fails.
4. **Session names** use only letters, digits, ` + "`" + `-` + "`" + ` and ` + "`" + `_` + "`" + `.

## Images

- Upload images with the ` + "`" + `upload_image` + "`" + ` tool. Every upload is converted
  to webp and stored as ` + "`" + `media/<session>/<YYYYMMDD_HHMMSS>.webp` + "`" + `.
- Uploading identical bytes twice returns the existing path with
  ` + "`" + `duplicate: true` + "`" + `. That file belongs to whatever card already embeds
  it. **Never pass a duplicate path to ` + "`" + `uploaded_images` + "`" + ` or
  ` + "`" + `cleanup_images` + "`" + `**, or a saved card may lose its image.
- Embed images with Markdown ` + "`" + `![alt](media/<session>/<file>.webp)` + "`" + ` or
  HTML ` + "`" + `<img src="media/<session>/<file>.webp">` + "`" + `.
- An image that no card references any more is deleted when the card that
  used it is edited or removed. Pass the new (non-duplicate) paths you
  uploaded during an edit as ` + "`" + `uploaded_images` + "`" + ` to ` + "`" + `update_card` + "`" + ` or
  ` + "`" + `delete_card` + "`" + ` so unused uploads are discarded too, or call
  ` + "`" + `cleanup_images` + "`" + ` with them if you abandon the edit.

## Example

` + "```" + `markdown
# Week 3: Photosynthesis
---
![Leaf cross-section](media/session-03/20240101_093000.webp)

Chloroplasts sit in the mesophyll.
---
<img src="media/session-03/20240101_093512.webp" width="400">
` + "```" + `
`
