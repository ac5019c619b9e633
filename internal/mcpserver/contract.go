package mcpserver

// DocumentFormatContract describes the canonical markdown document format
// that LLM consumers should follow when creating or editing documents.
const DocumentFormatContract = `# Ansuz Document Format Contract

Every markdown document stored in Ansuz MUST follow this structure.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # OPTIONAL - overrides the first heading in listings
keywords:                          # OPTIONAL - YAML list; used for filtering and search
  - keyword-one
  - keyword-two
---

# Document Title

Intro text before the first subheading.

## Section Title

Body text in standard Markdown.

Reference other documents with @/path/to/doc.md and single sections
with @/path/to/doc.md#section-slug.
` + "```" + `

## Rules

1. **ATX headings only.** Headings start at column 0 with 1-6 ` + "`#`" + ` characters
   followed by a space. Setext underline headings are not recognized.
2. **Heading depth is capped at 6.** Edits that would nest deeper are rejected.
3. **Section slugs** are derived from heading titles: lowercase, non-alphanumerics
   collapsed to ` + "`-`" + ` (e.g. "API Endpoints" → ` + "`api-endpoints`" + `). Address nested or
   repeated headings hierarchically: ` + "`parent/child`" + `.
4. **Tasks** live under a heading titled exactly ` + "`Tasks`" + ` (any depth). A subheading
   of Tasks is addressable as a task; headings elsewhere are not tasks no matter
   what they are called.
5. **References** use the ` + "`@`" + ` prefix: ` + "`@/guides/auth.md`" + ` for a whole document,
   ` + "`@/guides/auth.md#tokens`" + ` for one section, ` + "`@#local-section`" + ` within the same
   document. Paths are workspace-absolute and keep the ` + "`.md`" + ` extension.
6. **Frontmatter is optional.** When present it must be the first thing in the
   file, fenced by ` + "`---`" + ` lines, with English keys. Values may use any language.
7. **File paths** end with ` + "`.md`" + `, use forward slashes, and never contain ` + "`..`" + `.
8. **Encoding** is UTF-8 with a trailing newline.

## Editing

- Edit one section at a time with the ` + "`edit_section`" + ` tool rather than rewriting
  whole documents; concurrent edits to different sections then stay safe.
- ` + "`replace`" + `, ` + "`append`" + `, ` + "`prepend`" + ` change a section's body text.
- ` + "`insert_before`" + `, ` + "`insert_after`" + ` add a sibling heading; ` + "`append_child`" + ` adds a
  child heading one level deeper. All three require a ` + "`title`" + `.
- ` + "`remove`" + ` deletes the section together with its subsections.
- Pass the checksum from the last read when updating a whole document; a stale
  checksum means someone else wrote first, so re-read and retry.

## Example

` + "```" + `markdown
---
title: Payments Service
keywords:
  - billing
  - api
---

# Payments Service

Overview of the payments flow. Auth details live in @/guides/auth.md#tokens.

## Endpoints

### Create Charge

POST /charges creates a charge.

## Tasks

### Add retry budget

Wire @/runbooks/retries.md into the charge path.
` + "```" + `
`
