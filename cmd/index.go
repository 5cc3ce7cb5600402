package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"loom/weft/internal/rag"
)

var indexJSON bool

// osFile adapts a file on disk to the attachment contract.
type osFile struct {
	path string
	info os.FileInfo
}

func (f *osFile) Name() string   { return filepath.Base(f.path) }
func (f *osFile) Size() int64    { return f.info.Size() }
func (f *osFile) ModTime() int64 { return f.info.ModTime().UnixMilli() }

func (f *osFile) MIMEType() string {
	return mime.TypeByExtension(filepath.Ext(f.path))
}

func (f *osFile) Open() (io.ReadCloser, error) {
	return os.Open(f.path)
}

var indexCmd = &cobra.Command{
	Use:   "index <scope-type> <scope-id> <file>",
	Short: "Chunk and embed an attachment into a retrieval scope",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		scopeType, scopeID, path := args[0], args[1], args[2]
		if err := validScope(scopeType); err != nil {
			return err
		}

		s, cfg, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		ix := &rag.Indexer{Store: s}
		if client := newAIClient(cfg); client != nil {
			ix.Embedder = client
		}

		result, err := ix.IndexAttachment(cmd.Context(), scopeType, scopeID,
			&osFile{path: path, info: info}, cfg.IndexSettings())
		if err != nil {
			return err
		}

		if indexJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		switch {
		case result.Reused:
			fmt.Printf("%s: reused %d chunks\n", filepath.Base(path), result.ChunkCount)
		case result.Placeholder:
			fmt.Printf("%s: unreadable, stored placeholder\n", filepath.Base(path))
		case result.Degraded:
			fmt.Printf("%s: indexed %d chunks (lexical only, embedding unavailable)\n",
				filepath.Base(path), result.ChunkCount)
		default:
			fmt.Printf("%s: indexed %d chunks\n", filepath.Base(path), result.ChunkCount)
		}
		return nil
	},
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize <scope-type> <scope-id> <source-key>",
	Short: "Map-reduce summarize the chunks of an indexed attachment",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		scopeType, scopeID, sourceKey := args[0], args[1], args[2]
		if err := validScope(scopeType); err != nil {
			return err
		}

		s, cfg, err := openStore()
		if err != nil {
			return err
		}
		defer s.Close()

		chunks, err := s.LoadChunksForSource(cmd.Context(), scopeType, scopeID, sourceKey)
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			return fmt.Errorf("no chunks for source key %q", sourceKey)
		}

		client := newAIClient(cfg)
		if client == nil {
			return fmt.Errorf("summarize requires an API key (set OPENAI_API_KEY or ai.api_key)")
		}

		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		summary, err := rag.Summarize(cmd.Context(), texts, client)
		if err != nil {
			return err
		}
		fmt.Println(summary)
		return nil
	},
}

func validScope(scopeType string) error {
	switch scopeType {
	case rag.ScopeConversation, rag.ScopeProject, rag.ScopeUser:
		return nil
	}
	return fmt.Errorf("unknown scope type %q (want %s, %s, or %s)",
		scopeType, rag.ScopeConversation, rag.ScopeProject, rag.ScopeUser)
}

func init() {
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "JSON output")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(summarizeCmd)
}
