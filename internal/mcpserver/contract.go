package mcpserver

// CaptureFormatContract explains to LLM consumers how captures reference
// each other and which metadata the server fills in.
const CaptureFormatContract = `# Capture Format Contract

A capture is free text. There is no frontmatter and no required structure.

## References

- Write ` + "`[[Exact Title]]`" + ` anywhere in the content to link to another capture.
- The text between the brackets is trimmed and matched against the titles of
  your captures, then against their slugs (` + "`[[weekly-sync]]`" + ` works too).
- The first ` + "`]]`" + ` closes a reference; titles containing ` + "`]`" + ` can only be referenced by slug.
- References that match nothing are kept as text and create no link.
- A capture never links to itself.
- Links are derived from the content on every save: removing the reference removes the link.

## Metadata

- **title**: optional, at most 255 characters. When omitted it is the first
  line of the content (at most 100 characters) until a better one is generated.
- **tags**: optional, lowercase, at most 50 characters each. When omitted,
  tags are proposed in the background and only tags you already use are attached.
- **slug**: assigned by the server from the title and unique across all captures.
- Generated metadata arrives a few seconds after creation; read the capture
  again to see it.

## Concurrency

read_capture returns a ` + "`checksum`" + `. Pass it as ` + "`if_match`" + ` to update_capture to
reject the update when the content changed in between.

## Example

` + "```" + `text
Meeting notes
Discussed the launch plan from [[Project Kickoff]].
Follow up in [[weekly-sync]].
` + "```" + `
`
