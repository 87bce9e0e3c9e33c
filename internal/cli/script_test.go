package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// scriptEnv lists the variables copied from the script state into the
// process environment for each in-process asccrash run.
var scriptEnv = []string{"ASCCRASH_DATA_DIR", "ASCCRASH_FORMAT", "ASCCRASH_LOG_LEVEL", "ASCCRASH_NO_COLOR"}

// TestScripts runs testdata/script/*.txt. Each script starts with an empty
// fake App Store Connect that monitors com.example.app (app id app-1) and a
// data directory at $WORK/data.
func TestScripts(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "script", "*.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no scripts found")
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".txt")
		t.Run(name, func(t *testing.T) {
			for _, key := range scriptEnv {
				t.Setenv(key, "")
			}

			fake := newFakeASC(t)
			fake.addApp(testBundle, "app-1")

			work := t.TempDir()
			writeDataDir(t, filepath.Join(work, "data"), fake.URL(), testBundle)

			engine := &script.Engine{
				Cmds:  scripttest.DefaultCmds(),
				Conds: scripttest.DefaultConds(),
			}
			engine.Cmds["asccrash"] = asccrashCmd()
			engine.Cmds["fakeasc"] = fakeASCCmd(fake)

			env := []string{
				"WORK=" + work,
				"HOME=" + work,
				"PATH=" + os.Getenv("PATH"),
				"ASCCRASH_DATA_DIR=" + filepath.Join(work, "data"),
				"ASCCRASH_LOG_LEVEL=warn",
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			state, err := script.NewState(ctx, work, env)
			if err != nil {
				t.Fatal(err)
			}

			f, err := os.Open(file)
			if err != nil {
				t.Fatal(err)
			}
			defer f.Close()

			scripttest.Run(t, engine, state, file, f)
		})
	}
}

// asccrashCmd runs the CLI in-process with the script's ASCCRASH_* variables.
func asccrashCmd() script.Cmd {
	return script.Command(
		script.CmdUsage{
			Summary: "run asccrash in-process",
			Args:    "args...",
		},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			for _, key := range scriptEnv {
				if v, ok := s.LookupEnv(key); ok && v != "" {
					os.Setenv(key, v)
				} else {
					os.Unsetenv(key)
				}
			}

			var stdout, stderr bytes.Buffer
			code := Run(s.Context(), args, &stdout, &stderr)

			return func(*script.State) (string, string, error) {
				var err error
				if code != ExitSuccess {
					err = fmt.Errorf("exit status %d", code)
				}
				return stdout.String(), stderr.String(), err
			}, nil
		})
}

// fakeASCCmd lets scripts change what the fake API serves:
//
//	fakeasc crash <id> <created> [device] [os]
//	fakeasc feedback <id> <created> [comment]
//	fakeasc log <id> <text>
//	fakeasc screenshot <id>
//	fakeasc app <bundle-id> <app-id>
func fakeASCCmd(fake *fakeASC) script.Cmd {
	return script.Command(
		script.CmdUsage{
			Summary: "change the fake App Store Connect data",
			Args:    "crash|feedback|log|screenshot|app args...",
		},
		func(s *script.State, args ...string) (script.WaitFunc, error) {
			if len(args) < 2 {
				return nil, script.ErrUsage
			}
			switch args[0] {
			case "crash", "feedback":
				if len(args) < 3 {
					return nil, script.ErrUsage
				}
				created, err := time.Parse(time.RFC3339, args[2])
				if err != nil {
					return nil, err
				}
				sub := fakeSubmission{ID: args[1], CreatedAt: created}
				if args[0] == "crash" {
					if len(args) > 3 {
						sub.Device = args[3]
					}
					if len(args) > 4 {
						sub.OS = args[4]
					}
					fake.addCrash("app-1", sub)
				} else {
					if len(args) > 3 {
						sub.Comment = strings.Join(args[3:], " ")
					}
					fake.addFeedback("app-1", sub)
				}
			case "log":
				if len(args) < 3 {
					return nil, script.ErrUsage
				}
				fake.setLog(args[1], strings.Join(args[2:], " ")+"\n")
			case "screenshot":
				fake.setScreenshot(args[1])
			case "app":
				if len(args) != 3 {
					return nil, script.ErrUsage
				}
				fake.addApp(args[1], args[2])
			default:
				return nil, script.ErrUsage
			}
			return nil, nil
		})
}
