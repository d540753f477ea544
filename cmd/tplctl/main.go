// tplctl 模板集合的命令行维护工具：迁移、导入导出、渲染
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"reply_templates/config"
	"reply_templates/service"
	"reply_templates/utils"

	"github.com/atotto/clipboard"
	"go.uber.org/zap"
)

const usage = `Usage: tplctl <command> [flags]

Commands:
  migrate                       run pending template migrations
  export [-o file]              write all templates and global variables as JSON
  import -f file [-merge]       replace (or merge into) the template collection
  render -id ID [-set k=v]...   render a template, -copy puts the result on the clipboard
`

// kvFlags 可重复的 -set name=value
type kvFlags map[string]string

func (f kvFlags) String() string {
	pairs := make([]string, 0, len(f))
	for k, v := range f {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (f kvFlags) Set(value string) error {
	name, val, ok := strings.Cut(value, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("expected name=value, got %q", value)
	}
	f[strings.TrimSpace(name)] = val
	return nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := config.Load()
	logger, err := utils.NewLogger(cfg.LogLevel, "console")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	store, closeStore, err := utils.OpenStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer closeStore()

	svc := service.NewTemplateService(store, logger)
	if err := run(context.Background(), svc, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		closeStore()
		os.Exit(1)
	}
}

func run(ctx context.Context, svc *service.TemplateService, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "migrate":
		reports, err := svc.RunMigrations(ctx)
		if err != nil {
			return err
		}
		for _, r := range reports {
			fmt.Fprintf(out, "%s: %d record(s) changed\n", r.Migration, r.Affected)
			for _, o := range r.Renamed() {
				fmt.Fprintf(out, "  renamed %s: %q -> %q\n", o.TemplateID, o.PreviousName, o.Name)
			}
		}
		return nil

	case "export":
		fs := flag.NewFlagSet("export", flag.ContinueOnError)
		output := fs.String("o", "", "output file (default stdout)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		envelope, err := svc.ExportData(ctx)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(envelope, "", "  ")
		if err != nil {
			return err
		}
		if *output == "" {
			_, err = fmt.Fprintln(out, string(data))
			return err
		}
		return os.WriteFile(*output, data, 0o644)

	case "import":
		fs := flag.NewFlagSet("import", flag.ContinueOnError)
		file := fs.String("f", "", "export file to import")
		merge := fs.Bool("merge", false, "merge with the existing collection instead of replacing it")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *file == "" {
			return fmt.Errorf("-f is required")
		}
		raw, err := os.ReadFile(*file)
		if err != nil {
			return err
		}
		result, err := svc.ImportData(ctx, raw, service.ImportOptions{Merge: *merge})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "imported %d template(s), skipped %d\n", result.Imported, len(result.Skipped))
		for _, s := range result.Skipped {
			fmt.Fprintf(out, "  #%d %s: %s\n", s.Index, s.ID, s.Reason)
		}
		return nil

	case "render":
		fs := flag.NewFlagSet("render", flag.ContinueOnError)
		id := fs.String("id", "", "template id")
		copyResult := fs.Bool("copy", false, "copy the rendered content to the clipboard")
		values := kvFlags{}
		fs.Var(values, "set", "variable value as name=value (repeatable)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *id == "" {
			return fmt.Errorf("-id is required")
		}
		result, err := svc.RenderTemplate(ctx, *id, values)
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("template %s not found", *id)
		}
		if len(result.MissingVariables) > 0 {
			fmt.Fprintf(os.Stderr, "missing variables: %s\n", strings.Join(result.MissingVariables, ", "))
		}
		if *copyResult {
			if err := clipboard.WriteAll(result.Content); err != nil {
				return fmt.Errorf("failed to copy to clipboard: %w", err)
			}
			fmt.Fprintln(out, "copied to clipboard")
			return nil
		}
		_, err = fmt.Fprintln(out, result.Content)
		return err
	}

	return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
}
