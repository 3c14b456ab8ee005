package persistence

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/a-h/templ"
)

// WriteReport renders component into the file at path, replacing any
// previous report.
func WriteReport(ctx context.Context, path string, component templ.Component) (err error) {
	if path == "" {
		return fmt.Errorf("report path is empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			slog.Error(fmt.Sprintf("Error occured: %s", closeErr.Error()))
			if err == nil {
				err = closeErr
			}
		}
	}()

	writer := bufio.NewWriter(file)

	if err = component.Render(ctx, writer); err != nil {
		return err
	}

	return writer.Flush()
}
