package ddl

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/boyter/gocodewalker"

	"github.com/rlch/relgraph"
	"github.com/rlch/relgraph/schema"
)

//nolint:gochecknoinits // Source self-registration pattern
func init() {
	relgraph.RegisterSource(relgraph.SourceDDL, func(cfg *relgraph.SourceConfig) (relgraph.Source, error) {
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: ddl source needs a path", relgraph.ErrNoSource)
		}

		return &Source{path: cfg.Path, concurrency: cfg.Concurrency}, nil
	})
}

// Source reads DDL from a file or from every .sql/.ddl file below a
// directory.
type Source struct {
	path        string
	concurrency int
}

// NewSource creates a DDL source for path.
func NewSource(path string, concurrency int) *Source {
	return &Source{path: path, concurrency: concurrency}
}

// Name returns the source identifier.
func (s *Source) Name() string {
	return relgraph.SourceDDL
}

// Load parses the file, or all DDL files under the directory in path order.
func (s *Source) Load(ctx context.Context) (*schema.Schema, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return ParseFile(s.path)
	}

	files, err := ListFiles(s.path)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("ddl: no %v files under %s", relgraph.DDLExtensions, s.path)
	}

	return ParseFiles(ctx, schemaName(s.path), files, s.concurrency)
}

// Close is a no-op.
func (s *Source) Close() error {
	return nil
}

// ListFiles walks root for DDL files, honouring .gitignore and .ignore
// files, and returns them sorted.
func ListFiles(root string) ([]string, error) {
	fileListQueue := make(chan *gocodewalker.File, 100)

	fileWalker := gocodewalker.NewFileWalker(root, fileListQueue)
	fileWalker.AllowListExtensions = relgraph.DDLExtensions

	var walkErr error
	fileWalker.SetErrorHandler(func(e error) bool {
		walkErr = e
		return true
	})

	var (
		wg    sync.WaitGroup
		files []string
	)

	wg.Add(1)

	go func() {
		defer wg.Done()

		for f := range fileListQueue {
			files = append(files, f.Location)
		}
	}()

	if err := fileWalker.Start(); err != nil {
		return nil, err
	}

	wg.Wait()

	if walkErr != nil {
		return nil, walkErr
	}

	sort.Strings(files)

	return files, nil
}

var _ relgraph.Source = (*Source)(nil)
