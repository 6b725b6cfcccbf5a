// workloadctl is the operator CLI: it stores the workload API credentials,
// lists workloads, publishes catalogue manifests and runs lifecycle requests
// end to end without a workflow engine.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"workload-orchestrator/internal/config"
	"workload-orchestrator/internal/heartbeat"
	"workload-orchestrator/internal/objstore"
	"workload-orchestrator/internal/runner"
	"workload-orchestrator/internal/secrets"
	"workload-orchestrator/internal/workload"
	"workload-orchestrator/internal/workloadapi"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const usageText = `usage: workloadctl <command> [flags]

commands:
  secrets put --access-key KEY --secret-key SECRET
  workloads list
  task get TASK_ID
  catalogue create --bucket B --name N --manifest PATH [--description D]
  catalogue update --catalogue-id ID --bucket B --name N --manifest PATH [--description D]
  run [--max-polls N] [--poll-initial D] [--callback-token T]... REQUEST_FILE`

func main() {
	config.LoadDotEnv()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(config.GetEnv("LOG_LEVEL", "warn")),
	})))

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "secrets":
		err = runSecrets(ctx, os.Args[2:])
	case "workloads":
		err = runWorkloads(ctx, os.Args[2:])
	case "task":
		err = runTask(ctx, os.Args[2:])
	case "catalogue":
		err = runCatalogue(ctx, os.Args[2:])
	case "run":
		err = runRequest(ctx, os.Args[2:])
	case "help", "-h", "--help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "workloadctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, usageText)
}

func runSecrets(ctx context.Context, args []string) error {
	if len(args) < 1 || args[0] != "put" {
		return errors.New("usage: workloadctl secrets put --access-key KEY --secret-key SECRET")
	}
	fs := flag.NewFlagSet("secrets put", flag.ExitOnError)
	accessKey := fs.String("access-key", "", "workload API access key")
	secretKey := fs.String("secret-key", "", "workload API secret key")
	_ = fs.Parse(args[1:])

	if strings.TrimSpace(*accessKey) == "" || strings.TrimSpace(*secretKey) == "" {
		return errors.New("--access-key and --secret-key are required")
	}

	cfg := secrets.LoadConfigFromEnv()
	store, err := secrets.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.PutSecret(ctx, cfg.AccessKeyPath, *accessKey); err != nil {
		return err
	}
	if err := store.PutSecret(ctx, cfg.SecretKeyPath, *secretKey); err != nil {
		return err
	}
	fmt.Printf("stored %s and %s in %s backend\n", cfg.AccessKeyPath, cfg.SecretKeyPath, cfg.Backend)
	return nil
}

func runWorkloads(ctx context.Context, args []string) error {
	if len(args) < 1 || args[0] != "list" {
		return errors.New("usage: workloadctl workloads list")
	}
	svc, err := newService(ctx, false)
	if err != nil {
		return err
	}
	workloads, err := svc.ListWorkloads(ctx)
	if err != nil {
		return err
	}
	return printJSON(workloads)
}

func runTask(ctx context.Context, args []string) error {
	if len(args) < 2 || args[0] != "get" {
		return errors.New("usage: workloadctl task get TASK_ID")
	}
	svc, err := newService(ctx, false)
	if err != nil {
		return err
	}
	task, err := svc.GetTaskStatus(ctx, args[1])
	if err != nil {
		return err
	}
	return printJSON(task)
}

func runCatalogue(ctx context.Context, args []string) error {
	if len(args) < 1 || (args[0] != "create" && args[0] != "update") {
		return errors.New("usage: workloadctl catalogue <create|update> [flags]")
	}
	fs := flag.NewFlagSet("catalogue "+args[0], flag.ExitOnError)
	bucket := fs.String("bucket", "", "bucket the manifest template is uploaded to")
	name := fs.String("name", "", "catalogue name")
	manifest := fs.String("manifest", "", "local path of the manifest template")
	description := fs.String("description", "", "catalogue description")
	catalogueID := fs.String("catalogue-id", "", "existing catalogue id (update only)")
	_ = fs.Parse(args[1:])

	req := &workload.CatalogueRequest{
		Bucket:       *bucket,
		Name:         *name,
		ManifestPath: *manifest,
		Description:  *description,
	}
	if args[0] == "update" {
		id, err := uuid.Parse(*catalogueID)
		if err != nil {
			return fmt.Errorf("--catalogue-id must be a UUID: %w", err)
		}
		req.ExistingCatalogueID = &id
	}

	svc, err := newService(ctx, true)
	if err != nil {
		return err
	}
	resp, err := svc.CreateOrUpdateCatalogue(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func runRequest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	maxPolls := fs.Int("max-polls", 0, "give up after N status reads (0 = no limit)")
	pollInitial := fs.Duration("poll-initial", 5*time.Second, "first wait between status reads")
	pollMax := fs.Duration("poll-max", time.Minute, "longest wait between status reads")
	var tokens stringList
	fs.Var(&tokens, "callback-token", "heartbeat this callback token while waiting (repeatable)")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("usage: workloadctl run [flags] REQUEST_FILE")
	}
	raw, err := loadRequest(fs.Arg(0))
	if err != nil {
		return err
	}

	svc, err := newService(ctx, false)
	if err != nil {
		return err
	}

	var opts []runner.Option
	if len(tokens) > 0 {
		sender, err := heartbeat.NewHTTPSender(heartbeat.LoadConfigFromEnv())
		if err != nil {
			return err
		}
		opts = append(opts, runner.WithHeartbeats(heartbeat.NewEmitter(sender, nil), tokens))
	}

	r := runner.New(svc, runner.Config{
		PollInitial: *pollInitial,
		PollMax:     *pollMax,
		MaxPolls:    *maxPolls,
	}, opts...)

	result, runErr := r.Run(ctx, raw)
	if result != nil {
		if err := printJSON(result); err != nil {
			return err
		}
	}
	return runErr
}

// loadRequest reads a lifecycle request from a YAML or JSON file.
func loadRequest(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%s is empty", path)
	}
	return raw, nil
}

// newService wires the workload API client from the configured secret store.
func newService(ctx context.Context, withStore bool) (*workload.Service, error) {
	secretsCfg := secrets.LoadConfigFromEnv()
	store, err := secrets.Open(ctx, secretsCfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	keys, err := secrets.LoadKeyPair(ctx, store, secretsCfg)
	if err != nil {
		return nil, err
	}

	client, err := workloadapi.NewClient(workloadapi.LoadConfigFromEnv(), workloadapi.StaticCredentials(workloadapi.Credentials(keys)))
	if err != nil {
		return nil, err
	}

	var objects workload.ObjectStore
	if withStore {
		minioStore, err := objstore.NewMinioStore(objstore.LoadConfigFromEnv())
		if err != nil {
			return nil, err
		}
		objects = minioStore
	}
	return workload.NewService(client, objects, nil), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
