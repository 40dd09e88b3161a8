// Package dataset reads batch inputs into work items and writes accepted
// items back out.
//
// Four source types are supported: jsonl, parquet, sqlite and hf. An hf path
// names a Hugging Face dataset whose auto-converted parquet export is
// downloaded through the datasets-server API. Rows are projected with one of
// two formats:
//
//   - messages_column: each row carries a "messages" list of role/content
//     pairs. A configured system prompt is prepended.
//   - prompt_column: each row carries a "prompt" string that becomes the
//     single user message, after the optional system prompt.
//
// Writers mirror the same formats. hf output is stored locally as parquet.
// Every write replaces the target atomically, so a checkpoint interrupted
// mid-write leaves the previous snapshot intact.
package dataset
