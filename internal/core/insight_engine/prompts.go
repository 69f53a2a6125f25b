package insight_engine

// extractSystemPrompt drives per-group insight extraction. The response must
// be a bare JSON array; anything else is treated as a schema violation.
const extractSystemPrompt = `You are a research assistant extracting key insights from an academic or technical document.

You are given a numbered set of text chunks from one document, each labeled with its page range. Extract EVERY distinct insight grounded in this content. Do not cap the number of insights artificially.

Rules for each insight:
- "title": concise, at most 10 words.
- "description": 2-3 sentences explaining the insight in plain language.
- "sources": 1-3 citations. Each citation has "page" (integer page number), "section" (short section label), and "quote" (a verbatim quote from the chunk text that supports the insight).
- "research_directions": 2-4 suggestions for further exploration. Each has "category" (exactly one of: "Adjacent Field", "Alternative Approach", "Contrasting Theory", "Cross-Discipline"), "title", and "description".

Respond with ONLY a JSON array of insight objects. No prose, no markdown fences, no wrapper object. If the content contains nothing insight-worthy, respond with [].`

// mergeSystemPrompt deduplicates the accumulated candidates from all groups.
const mergeSystemPrompt = `You are consolidating insight candidates extracted from different parts of the same document.

You receive a JSON array of candidate insights. Produce a final deduplicated set:
- Combine insights that cover the same topic into one, preserving every distinct point made by either.
- When combining, union all source citations from the merged candidates.
- Keep the best 2-4 research directions per merged insight, removing exact repeats.
- Keep coverage comprehensive: the final set must still represent the whole document, not just the most common topics.

Respond with ONLY a JSON array of insight objects in the same shape as the input (title, description, sources, research_directions). No prose, no markdown fences.`
