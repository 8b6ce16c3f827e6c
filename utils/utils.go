package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Commands lists the recognised sub-commands
var Commands = []string{
	"task-add", "task-list", "task-complete", "task-delete",
	"submit", "review", "submissions", "score-pending",
	"compare", "stats",
}

func isCommand(arg string) bool {
	for _, c := range Commands {
		if arg == c {
			return true
		}
	}
	return false
}

// ParseArguments converts command-line arguments into a map of flags and values.
// The sub-command, if any, is stored under "command".
func ParseArguments(argv []string) map[string]string {
	args := make(map[string]string)

	commandIndex := -1
	for i := 1; i < len(argv); i++ {
		if isCommand(argv[i]) {
			args["command"] = argv[i]
			commandIndex = i
			break
		}
	}

	for i := 1; i < len(argv); i++ {
		if i == commandIndex {
			continue
		}

		arg := argv[i]

		// Handle flags with equals sign (--key=value)
		if strings.HasPrefix(arg, "--") && strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			flagName := strings.TrimPrefix(parts[0], "--")
			args[flagName] = parts[1]
			continue
		}

		// Handle flags without equals sign (--key value)
		if strings.HasPrefix(arg, "--") {
			flagName := strings.TrimPrefix(arg, "--")

			// Boolean flag when no value follows
			if i+1 >= len(argv) || strings.HasPrefix(argv[i+1], "--") || i+1 == commandIndex {
				args[flagName] = "true"
			} else {
				args[flagName] = argv[i+1]
				i++
			}
		}
	}

	return args
}

// SplitList splits a comma separated flag value, dropping empty entries
func SplitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// PrintUsage outputs the command-line usage instructions
func PrintUsage() {
	fmt.Printf("Usage:\n")
	fmt.Printf("  %s task-add --title=TEXT --description=TEXT [--image=PATH]\n", os.Args[0])
	fmt.Printf("  %s task-list [--status=active|completed]\n", os.Args[0])
	fmt.Printf("  %s task-complete --task=ID\n", os.Args[0])
	fmt.Printf("  %s task-delete --task=ID\n", os.Args[0])
	fmt.Printf("  %s submit --task=ID --name=TEXT --email=TEXT [--phone=TEXT] --images=A[,B,C]\n", os.Args[0])
	fmt.Printf("  %s review --submission=ID --status=approved|rejected [--notes=TEXT]\n", os.Args[0])
	fmt.Printf("  %s submissions [--task=ID]\n", os.Args[0])
	fmt.Printf("  %s score-pending\n", os.Args[0])
	fmt.Printf("  %s compare --reference=PATH --candidate=PATH\n", os.Args[0])
	fmt.Printf("  %s stats\n", os.Args[0])
	fmt.Printf("\nCommon parameters:\n")
	fmt.Printf("  --database    : Path to database file (default: $DATABASE_PATH or data/proofcheck.db)\n")
	fmt.Printf("  --uploads     : Directory for stored images (default: $UPLOAD_DIR or static/uploads)\n")
	fmt.Printf("  --threshold   : Auto-approve threshold (0.0-1.0, default: 0.5)\n")
	fmt.Printf("  --profile     : YAML scoring profile with threshold and metric weights\n")
	fmt.Printf("  --debug       : Enable debug mode (logs detailed information)\n")
	fmt.Printf("  --logfile     : Specify custom log file path (default: proofcheck.log)\n")
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  %s task-add --title=\"Plant a tree\" --description=\"Photo of the sapling\" --image=ref.jpg\n", os.Args[0])
	fmt.Printf("  %s submit --task=1a2b3c4d --name=Ada --email=ada@example.com --images=proof.jpg\n", os.Args[0])
	fmt.Printf("  %s compare --reference=ref.jpg --candidate=proof.jpg --debug\n", os.Args[0])
}

// ParseThreshold parses and validates a threshold value in [0,1]
func ParseThreshold(thresholdStr string) (float64, error) {
	parsedThreshold, err := strconv.ParseFloat(thresholdStr, 64)
	if err != nil || parsedThreshold < 0 || parsedThreshold > 1 {
		return 0, fmt.Errorf("invalid threshold value '%s', must be between 0 and 1", thresholdStr)
	}
	return parsedThreshold, nil
}
