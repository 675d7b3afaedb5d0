package rag

import (
	"strings"

	"notebookrag/internal/model"
	"notebookrag/internal/retrieval"
)

const rewritePrompt = `Based on the chat history below and the query, generate a query that extends the query with the chat history provided.
The query should be in natural language.
Answer with only the query.
Do not add any explanation.

Chat history:
%s
Query: %s`

const answerPrompt = `You are an expert assistant extracting information from the context provided.
Answer the question based on the context.
Be concise and do not hallucinate.
If you don't have the information just say so.
Do not mention the CONTEXT used in your answer.
Do not mention the CHAT HISTORY used in your answer.
Only answer the question if you can extract it from the CONTEXT provided.

Context:
%s
Query: %s
Answer:`

func formatHistory(history []model.ChatMessage) string {
	var b strings.Builder
	for _, m := range history {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatContext(fragments []retrieval.Fragment) string {
	if len(fragments) == 0 {
		return "(no context)"
	}
	var b strings.Builder
	for _, f := range fragments {
		b.WriteString("---\n")
		b.WriteString(strings.TrimSpace(f.Chunk))
		b.WriteByte('\n')
	}
	b.WriteString("---")
	return b.String()
}
