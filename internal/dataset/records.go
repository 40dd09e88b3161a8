package dataset

// messageRecord is the on-disk shape of one chat message.
type messageRecord struct {
	Role      string `json:"role" parquet:"role"`
	Content   string `json:"content" parquet:"content"`
	Reasoning string `json:"reasoning,omitempty" parquet:"reasoning,optional"`
}

// messagesRecord is one messages_column row.
type messagesRecord struct {
	Messages []messageRecord `json:"messages" parquet:"messages,list"`
}

// promptRecord is one prompt_column row. Response and Reasoning are only
// present on output.
type promptRecord struct {
	Prompt    string `json:"prompt" parquet:"prompt"`
	Response  string `json:"response,omitempty" parquet:"response,optional"`
	Reasoning string `json:"reasoning,omitempty" parquet:"reasoning,optional"`
}

// row is the format-neutral result of reading one input record.
// Response and Reasoning are only set when reading back prompt_column output.
type row struct {
	Messages  []messageRecord
	Prompt    *string
	Response  string
	Reasoning string
}

func messagesRows(records []messagesRecord) []row {
	rows := make([]row, len(records))
	for i, rec := range records {
		rows[i] = row{Messages: rec.Messages}
	}
	return rows
}

func promptRows(records []promptRecord) []row {
	rows := make([]row, len(records))
	for i := range records {
		rows[i] = row{Prompt: &records[i].Prompt, Response: records[i].Response, Reasoning: records[i].Reasoning}
	}
	return rows
}
