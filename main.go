package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"proofcheck/config"
	"proofcheck/database"
	"proofcheck/imageprocessor"
	"proofcheck/lifecycle"
	"proofcheck/logging"
	"proofcheck/moderation"
	"proofcheck/signalhandler"
	"proofcheck/similarity"
	"proofcheck/types"
	"proofcheck/uploads"
	"proofcheck/utils"
)

// app holds everything a command needs
type app struct {
	cfg     *config.Config
	store   *database.Store
	files   *uploads.Store
	scorer  *similarity.Scorer
	decider *moderation.Decider
	manager *lifecycle.Manager
}

func main() {
	ctx, cancel := signalhandler.SetupHandler(context.Background())
	defer cancel()

	// Set the optimal number of CPUs to use
	runtime.GOMAXPROCS(signalhandler.GetOptimalProcs())

	args := utils.ParseArguments(os.Args)
	command, hasCommand := args["command"]
	if !hasCommand || missingRequired(command, args) {
		utils.PrintUsage()
		os.Exit(1)
	}

	if _, ok := args["debug"]; ok {
		logPath := "proofcheck.log"
		if customLogPath, ok := args["logfile"]; ok && customLogPath != "" {
			logPath = customLogPath
		}
		if err := logging.SetupLogger(logPath); err != nil {
			fmt.Printf("Warning: Failed to setup logging: %v\n", err)
		} else {
			fmt.Printf("Debug mode enabled. Logging to: %s\n", logPath)
		}
	}
	defer logging.CloseLogger()

	a, err := newApp(args)
	if err != nil {
		fatal("Error starting up: %v", err)
	}
	defer a.store.Close()

	startTime := time.Now()
	switch command {
	case "task-add":
		err = handleTaskAdd(ctx, a, args)
	case "task-list":
		err = handleTaskList(ctx, a, args)
	case "task-complete":
		err = a.manager.CompleteTask(ctx, args["task"])
		if err == nil {
			fmt.Printf("Task %s marked as completed.\n", args["task"])
		}
	case "task-delete":
		err = a.manager.DeleteTask(ctx, args["task"])
		if err == nil {
			fmt.Printf("Task %s and all of its submissions deleted.\n", args["task"])
		}
	case "submit":
		err = handleSubmit(ctx, a, args)
	case "review":
		err = handleReview(ctx, a, args)
	case "submissions":
		err = handleSubmissions(ctx, a, args)
	case "score-pending":
		err = handleScorePending(ctx, a)
	case "compare":
		err = handleCompare(ctx, a, args)
	case "stats":
		err = handleStats(ctx, a)
	}
	if err != nil {
		fatal("Error running %s: %v", command, err)
	}
	logging.DebugLog("%s finished in %v", command, time.Since(startTime))
}

var requiredFlags = map[string][]string{
	"task-add":      {"title", "description"},
	"task-complete": {"task"},
	"task-delete":   {"task"},
	"submit":        {"task", "name", "email", "images"},
	"review":        {"submission", "status"},
	"compare":       {"reference", "candidate"},
}

func missingRequired(command string, args map[string]string) bool {
	for _, flag := range requiredFlags[command] {
		if args[flag] == "" {
			fmt.Printf("Error: Missing --%s for %s\n", flag, command)
			return true
		}
	}
	return false
}

func fatal(format string, args ...interface{}) {
	logging.LogError(format, args...)
	logging.CloseLogger()
	os.Exit(1)
}

// newApp loads configuration, applies flag overrides and opens the stores
func newApp(args map[string]string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if path := args["profile"]; path != "" {
		if err := config.LoadScoringProfile(path, &cfg.Scoring); err != nil {
			return nil, err
		}
	}
	if thresholdStr, ok := args["threshold"]; ok {
		threshold, err := utils.ParseThreshold(thresholdStr)
		if err != nil {
			return nil, err
		}
		cfg.Scoring.Threshold = threshold
	}
	if err := cfg.Scoring.Validate(); err != nil {
		return nil, err
	}
	if dbPath := args["database"]; dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if dir := args["uploads"]; dir != "" {
		cfg.UploadDir = dir
	}

	store, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.DatabasePath, err)
	}
	files, err := uploads.NewStore(cfg.UploadDir, cfg.MaxFileSize)
	if err != nil {
		store.Close()
		return nil, err
	}

	aggregator, err := similarity.NewAggregator(cfg.Scoring.Weights)
	if err != nil {
		store.Close()
		return nil, err
	}
	decider, err := moderation.NewDecider(cfg.Scoring.Threshold)
	if err != nil {
		store.Close()
		return nil, err
	}

	workers := signalhandler.GetOptimalProcs()
	preprocessor := imageprocessor.NewPreprocessor(cfg.Scoring.CanonicalSize, "")
	scorer := similarity.NewScorer(preprocessor, aggregator, nil, workers)

	return &app{
		cfg:     cfg,
		store:   store,
		files:   files,
		scorer:  scorer,
		decider: decider,
		manager: lifecycle.NewManager(store, files, scorer, decider, workers),
	}, nil
}

func openUpload(path string) (uploads.Upload, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return uploads.Upload{}, nil, err
	}
	return uploads.Upload{Filename: filepath.Base(path), Content: f}, func() { f.Close() }, nil
}

func handleTaskAdd(ctx context.Context, a *app, args map[string]string) error {
	in := lifecycle.NewTask{Title: args["title"], Description: args["description"]}
	if path := args["image"]; path != "" {
		upload, closeFile, err := openUpload(path)
		if err != nil {
			return err
		}
		defer closeFile()
		in.Image = upload
	}

	task, err := a.manager.CreateTask(ctx, in)
	if err != nil {
		return err
	}
	fmt.Printf("Created task %s: %s\n", task.ID, task.Title)
	if task.ReferenceImage != "" {
		fmt.Printf("Reference image: %s\n", a.files.Path(uploads.TasksBucket, task.ReferenceImage))
	}
	return nil
}

func handleTaskList(ctx context.Context, a *app, args map[string]string) error {
	tasks, err := a.manager.ListTasks(ctx, types.TaskStatus(args["status"]))
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found.")
		return nil
	}
	for _, task := range tasks {
		fmt.Printf("%s  [%s]  %s  (created %s)\n",
			task.ID, task.Status, task.Title, task.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func handleSubmit(ctx context.Context, a *app, args map[string]string) error {
	var images []uploads.Upload
	for _, path := range utils.SplitList(args["images"]) {
		upload, closeFile, err := openUpload(path)
		if err != nil {
			return err
		}
		defer closeFile()
		images = append(images, upload)
	}

	outcome, err := a.manager.Submit(ctx, lifecycle.NewSubmission{
		TaskID:    args["task"],
		UserName:  args["name"],
		UserEmail: args["email"],
		UserPhone: args["phone"],
		Images:    images,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Submission %s: %s\n", outcome.SubmissionID, outcome.Message)
	return nil
}

func handleReview(ctx context.Context, a *app, args map[string]string) error {
	status := types.SubmissionStatus(args["status"])
	taskID, err := a.manager.Review(ctx, args["submission"], status, args["notes"])
	if err != nil {
		return err
	}
	fmt.Printf("Submission %s %s (task %s).\n", args["submission"], status, taskID)
	return nil
}

func handleSubmissions(ctx context.Context, a *app, args map[string]string) error {
	subs, err := a.manager.ListSubmissions(ctx, args["task"])
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		fmt.Println("No submissions found.")
		return nil
	}
	for _, sub := range subs {
		fmt.Printf("%s  task %s  [%s]  %s <%s>  %d image(s)  %s\n",
			sub.ID, sub.TaskID, sub.Status, sub.UserName, sub.UserEmail,
			len(sub.ProofImages), sub.SubmittedAt.Local().Format("2006-01-02 15:04"))
		if sub.Notes != "" {
			fmt.Printf("   Notes: %s\n", sub.Notes)
		}
	}
	return nil
}

func handleScorePending(ctx context.Context, a *app) error {
	stats, err := a.manager.ScorePending(ctx, os.Stdout)
	if err != nil {
		return err
	}
	if stats.Total == 0 {
		fmt.Println("No unscored submissions.")
		return nil
	}
	fmt.Printf("Scored %d submissions in %v: %d approved, %d left for review.\n",
		stats.Total, stats.Elapsed.Round(time.Second), stats.Approved, stats.Pending)
	if stats.Errors > 0 {
		fmt.Printf("Encountered %d errors.\n", stats.Errors)
		fmt.Println("Check the log file for details.")
	}
	return nil
}

func handleCompare(ctx context.Context, a *app, args map[string]string) error {
	report, err := a.scorer.Score(ctx, args["reference"], args["candidate"])
	if similarity.IsUnscorable(err) {
		decision := a.decider.Unscorable(err.Error())
		fmt.Println(decision.Note)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println("Metrics:")
	for _, m := range report.Metrics {
		if m.Failed() {
			fmt.Printf("  %-10s : %.4f (weight %.2f, failed: %v)\n", m.Name, m.Value, m.Weight, m.Err)
		} else {
			fmt.Printf("  %-10s : %.4f (weight %.2f)\n", m.Name, m.Value, m.Weight)
		}
	}
	fmt.Printf("Similarity: %.4f\n", report.Score)
	fmt.Printf("Threshold : %.2f\n", a.decider.Threshold())
	fmt.Printf("Decision  : %s\n", a.decider.Decide(report.Score).Note)
	return nil
}

func handleStats(ctx context.Context, a *app) error {
	stats, err := a.manager.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Tasks       : %d (%d active, %d completed)\n", stats.TotalTasks, stats.ActiveTasks, stats.CompletedTasks)
	fmt.Printf("Submissions : %d (%d pending review)\n", stats.TotalSubmissions, stats.PendingSubmissions)
	return nil
}
