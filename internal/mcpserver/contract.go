package mcpserver

// DocumentFormat describes the Markdown document format that LLM consumers
// should follow when creating documents.
const DocumentFormat = `# Notebook Document Format

Documents are Markdown files (` + "`" + `.md` + "`" + `) or gallery files (` + "`" + `.gallery` + "`" + `)
under the notebook root. The file on disk is the source of truth; the index is
rebuilt from it.

## Metadata

Either a YAML front matter block:

` + "```" + `markdown
---
title: Weekly standup
date: 2025-01-20
tags: [meeting, project_x]
id: 42
draft: false
---
` + "```" + `

or a plain header block that starts with a ` + "`" + `Title:` + "`" + ` line and ends at the
first blank line:

` + "```" + `
Title: Weekly standup
Date: 2025-01-20
Tags: meeting, project_x
` + "```" + `

Keys are case-insensitive. Unknown keys are kept as extra metadata.

## Rules

1. **title** is the display name. Without it the file name is used.
2. **date** marks a blog post when the document lives under a blog directory.
3. **id** makes the document reachable at ` + "`" + `/id/<id>` + "`" + `. Ask
   the server for the next free number before picking one.
4. **draft: true** hides the document from readers.
5. **Tags** are lowercase; spaces and dashes become underscores. Inline
   ` + "`" + `#hashtags` + "`" + ` in the body are merged into the tag list.
6. **Wikilinks** use double brackets: ` + "`" + `[[other/page]]` + "`" + ` or
   ` + "`" + `[[other/page|shown text]]` + "`" + `. Relative targets resolve against the
   document's directory.
7. **Todo items** are checkbox lines: ` + "`" + `- [ ] (A) call Bob @phone +project_x` + "`" + `.
   A leading ` + "`" + `(X)` + "`" + ` sets the priority; ` + "`" + `@word` + "`" + ` is a context
   and ` + "`" + `+word` + "`" + ` a project.
8. **Encoding** is UTF-8 text. Binary content is rejected.

## Galleries

` + "```" + `
<gallery>
![Harbour at dawn](/media/harbour.jpg)
[![Thumbnail](/media/t/boat.jpg)](/media/boat.jpg)
Boats in the harbour
</gallery>
` + "```" + `

## Media

- Upload images and PDFs with the ` + "`" + `upload_asset` + "`" + ` tool. It returns the saved ` + "`" + `path` + "`" + ` and a ` + "`" + `markdown` + "`" + ` reference ready to paste.
- The file extension follows the content: a PNG sent as ` + "`" + `photo.jpg` + "`" + ` is saved as ` + "`" + `photo.png` + "`" + `.
- Media lives in ` + "`" + `/media/` + "`" + ` (flat) and is never indexed.
- Reference media with the absolute path: ` + "`" + `![description](/media/filename.png)` + "`" + `.
`
