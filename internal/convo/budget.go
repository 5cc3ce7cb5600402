package convo

// Fixed overhead constants. These are deliberately coarse: the estimate only
// feeds the decision of when to summarize or trim, not billing.
const (
	tokensPerTool      = 150
	tokensPerMCPServer = 200
	tokensPerMCPTool   = 100

	// Placeholder tool count for MCP servers whose tool list has not been
	// discovered yet.
	undiscoveredToolCount = 5

	memoryHeaderTokens      = 30
	tokensPerMemoryItem     = 40
	fallbackTokensPerMemory = 50
)

// MCPServer describes one configured MCP server for overhead estimation.
// ToolCount zero means the server's tool list has not been discovered.
type MCPServer struct {
	Name      string
	ToolCount int
}

// ToolSettings describes the tool surface attached to a request.
type ToolSettings struct {
	ToolCount  int
	MCPServers []MCPServer
}

// EstimateChars converts a character count to the fixed token approximation:
// ceil(chars/4). Auditable, not a tokenizer call.
func EstimateChars(chars int) int {
	return (chars + 3) / 4
}

// EstimateTokens estimates the token cost of a message sequence.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
	}
	return EstimateChars(total)
}

// ToolOverhead estimates the token cost of tool definitions: a fixed
// per-tool constant plus per-server and per-server-tool constants.
func ToolOverhead(s ToolSettings) int {
	total := s.ToolCount * tokensPerTool
	for _, srv := range s.MCPServers {
		count := srv.ToolCount
		if count <= 0 {
			count = undiscoveredToolCount
		}
		total += tokensPerMCPServer + count*tokensPerMCPTool
	}
	return total
}

// MemoryOverhead estimates the token cost of injected memories. With a
// retrieval preview available it is header plus per-item cost; without one
// it falls back to an estimate proportional to maxRetrieved.
func MemoryOverhead(previewItems int, havePreview bool, maxRetrieved int) int {
	if havePreview {
		if previewItems == 0 {
			return 0
		}
		return memoryHeaderTokens + previewItems*tokensPerMemoryItem
	}
	return maxRetrieved * fallbackTokensPerMemory
}

// ExtraTokens composes tool and memory overhead into the single figure the
// context-window sizing logic consumes.
func ExtraTokens(tools ToolSettings, previewItems int, havePreview bool, maxRetrieved int) int {
	return ToolOverhead(tools) + MemoryOverhead(previewItems, havePreview, maxRetrieved)
}
