package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/tidwall/pretty"
	"go.uber.org/zap"

	"github.com/v-sekai/jsonforge/api"
	"github.com/v-sekai/jsonforge/forge"
	"github.com/v-sekai/jsonforge/internal/store"
	"github.com/v-sekai/jsonforge/llm/tokenizer"
	"github.com/v-sekai/jsonforge/schema"
	"github.com/v-sekai/jsonforge/testutil/fixtures"
)

// =============================================================================
// 🔮 predict 命令
// =============================================================================

func runPredict(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return runPredictWith(args, stdin, stdout, stderr)
}

// runPredictWith 允许测试注入引擎
func runPredictWith(args []string, stdin io.Reader, stdout, stderr io.Writer, appOpts ...appOption) int {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	schemaPath := fs.String("schema", "", `Schema file, "-" reads stdin`)
	example := fs.String("example", "", "Built-in example name")
	prompt := fs.String("prompt", "", "Prompt")
	feedback := fs.Bool("feedback", false, "Append repeated keys to the prompt")
	refine := fs.Bool("refine", false, "Run a second pass seeded with the first result")
	save := fs.Bool("save", false, "Record the run in the configured database")
	full := fs.Bool("json", false, "Print the full prediction response instead of the record")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	root, defaultPrompt, err := loadSchema(*schemaPath, *example, stdin)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if *prompt == "" {
		*prompt = defaultPrompt
	}
	if *prompt == "" {
		fmt.Fprintln(stderr, "a prompt is required: use --prompt or --example")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	// 标准输出只留给结果
	cfg.Log.OutputPaths = []string{"stderr"}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	tokenizer.RegisterOpenAITokenizers()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !*save {
		appOpts = append(appOpts, withoutStore())
	}
	a, err := newApp(ctx, cfg, logger, appOpts...)
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize: %v\n", err)
		return 1
	}
	defer func() { _ = a.Close(context.WithoutCancel(ctx)) }()

	pipeline := a.pipeline
	if *feedback {
		pipeline = pipeline.Derive(forge.WithPromptFeedback(true))
	}

	mode := store.ModeSingle
	var res *forge.Result
	if *refine {
		mode = store.ModeRefine
		res, err = pipeline.Refine(ctx, *prompt, root)
	} else {
		res, err = pipeline.Run(ctx, *prompt, root)
	}

	runID := ""
	if *save {
		runID = a.saveRun(ctx, mode, *prompt, root, pipeline.PromptFeedback(), res, err)
	}
	if err != nil {
		fmt.Fprintf(stderr, "prediction failed: %v\n", err)
		return 1
	}

	for _, s := range res.Skipped {
		fmt.Fprintf(stderr, "skipped %s (%s): %s\n", s.Key, s.Stage, s.Reason)
	}

	var out []byte
	if *full {
		out, err = json.Marshal(api.NewPredictResponse(runID, res))
	} else {
		out, err = res.Record.MarshalJSON()
	}
	if err != nil {
		fmt.Fprintf(stderr, "failed to encode result: %v\n", err)
		return 1
	}
	_, _ = stdout.Write(pretty.Pretty(out))
	return 0
}

// saveRun 记录一次 CLI 运行，失败只记录警告
func (a *app) saveRun(ctx context.Context, mode, prompt string, root *schema.Node, feedback bool, res *forge.Result, runErr error) string {
	if a.runs == nil {
		a.logger.Warn("run store not available, run not recorded")
		return ""
	}
	run, err := store.NewRun(mode, a.cfg.Engine.Model, prompt, root, feedback, res, runErr)
	if err != nil {
		a.logger.Warn("run not recorded", zap.Error(err))
		return ""
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.runs.Save(saveCtx, run); err != nil {
		a.logger.Warn("run not recorded", zap.Error(err))
		return ""
	}
	return run.ID
}

// =============================================================================
// 🔪 decompose 命令
// =============================================================================

func runDecompose(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("decompose", flag.ContinueOnError)
	fs.SetOutput(stderr)
	schemaPath := fs.String("schema", "", `Schema file, "-" reads stdin`)
	example := fs.String("example", "", "Built-in example name")
	list := fs.Bool("list", false, "List built-in examples")
	asJSON := fs.Bool("json", false, "Print one JSON document with sub-schemas and leaf names")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *list {
		for _, name := range fixtures.Names() {
			e, _ := fixtures.Get(name)
			fmt.Fprintf(stdout, "%-12s %s\n", name, e.Description)
		}
		return 0
	}

	root, _, err := loadSchema(*schemaPath, *example, stdin)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	subs := schema.Decompose(root)

	if *asJSON {
		resp := api.DecomposeResponse{
			SubSchemas: make([]json.RawMessage, len(subs)),
			Leaves:     schema.LeafNames(subs),
		}
		for i, sub := range subs {
			b, err := sub.MarshalJSON()
			if err != nil {
				fmt.Fprintf(stderr, "failed to encode sub-schema: %v\n", err)
				return 1
			}
			resp.SubSchemas[i] = b
		}
		out, err := json.Marshal(resp)
		if err != nil {
			fmt.Fprintf(stderr, "failed to encode result: %v\n", err)
			return 1
		}
		_, _ = stdout.Write(pretty.Pretty(out))
		return 0
	}

	for i, sub := range subs {
		b, err := sub.MarshalJSON()
		if err != nil {
			fmt.Fprintf(stderr, "failed to encode sub-schema: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "# %d/%d %s\n", i+1, len(subs), schema.SubSchemaKey(sub))
		_, _ = stdout.Write(pretty.Pretty(b))
	}
	return 0
}

// loadSchema 从文件、标准输入或内置示例读取 schema，同时返回示例 prompt
func loadSchema(path, example string, stdin io.Reader) (*schema.Node, string, error) {
	switch {
	case path != "" && example != "":
		return nil, "", errors.New("--schema and --example are mutually exclusive")
	case example != "":
		e, ok := fixtures.Get(example)
		if !ok {
			return nil, "", fmt.Errorf("unknown example %q, known: %v", example, fixtures.Names())
		}
		return e.Node(), e.Prompt, nil
	case path == "":
		return nil, "", errors.New("a schema is required: use --schema or --example")
	}

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read schema: %w", err)
	}
	root, err := schema.Parse(data)
	if err != nil {
		return nil, "", fmt.Errorf("invalid schema: %w", err)
	}
	if err := schema.NewDraft07Validator().ValidateSchema(root); err != nil {
		return nil, "", fmt.Errorf("invalid schema: %w", err)
	}
	return root, "", nil
}
