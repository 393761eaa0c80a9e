// Copyright 2025 Joseph Cumines
//
// xcodebuild flow unit tests

package xcodebuild

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/joeycumines/xcodebuild-mcp/internal/executor"
	"github.com/joeycumines/xcodebuild-mcp/internal/fsys"
	"github.com/joeycumines/xcodebuild-mcp/internal/parse"
	"github.com/joeycumines/xcodebuild-mcp/internal/response"
	"github.com/joeycumines/xcodebuild-mcp/internal/toolerr"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// texts flattens the content blocks of res.
func texts(res *response.ToolResult) []string {
	out := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		out = append(out, c.Text)
	}
	return out
}

func TestCommand_DeviceBuild(t *testing.T) {
	cmd, err := Command(Params{ProjectPath: "/p.xcodeproj", Scheme: "MyScheme", Platform: PlatformIOS}, "build")
	if err != nil {
		t.Fatal(err)
	}
	if want := "xcodebuild -project /p.xcodeproj -scheme MyScheme -configuration Debug -skipMacroValidation -destination generic/platform=iOS build"; cmd.String() != want {
		t.Errorf("String() = %q, want %q", cmd.String(), want)
	}
	if cmd.UseShell {
		t.Error("UseShell = true for a destination without spaces")
	}
}

func TestCommand_Options(t *testing.T) {
	cmd, err := Command(Params{
		WorkspacePath:   "/w.xcworkspace",
		Scheme:          "App",
		Configuration:   "Release",
		Platform:        PlatformIOSSimulator,
		SimulatorName:   "iPhone 15",
		UseLatestOS:     true,
		DerivedDataPath: "/dd",
		ExtraArgs:       []string{"-quiet"},
	}, "build")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"xcodebuild", "-workspace", "/w.xcworkspace",
		"-scheme", "App", "-configuration", "Release", "-skipMacroValidation",
		"-destination", "platform=iOS Simulator,name=iPhone 15,OS=latest",
		"-derivedDataPath", "/dd", "-quiet", "build",
	}
	if !slices.Equal(cmd.Args, want) {
		t.Errorf("Args = %q, want %q", cmd.Args, want)
	}
	if !cmd.UseShell {
		t.Error("UseShell = false for a simulator name destination")
	}
	if !strings.Contains(cmd.String(), "'platform=iOS Simulator,name=iPhone 15,OS=latest'") {
		t.Errorf("String() = %q", cmd.String())
	}
}

func TestCommand_Validation(t *testing.T) {
	for _, p := range []Params{
		{Scheme: "S", Platform: PlatformIOS},
		{ProjectPath: "a", WorkspacePath: "b", Scheme: "S", Platform: PlatformIOS},
		{ProjectPath: "a", Platform: PlatformIOS},
		{ProjectPath: "a", Scheme: "S"},
	} {
		if _, err := Command(p, "build"); toolerr.KindOf(err) != toolerr.KindValidation {
			t.Errorf("%+v: error = %v, want validation", p, err)
		}
	}
}

func TestDestination(t *testing.T) {
	for _, tc := range []struct {
		p    Params
		want string
	}{
		{Params{Platform: PlatformMacOS}, "platform=macOS"},
		{Params{Platform: PlatformMacOS, Arch: "arm64"}, "platform=macOS,arch=arm64"},
		{Params{Platform: PlatformIOS}, "generic/platform=iOS"},
		{Params{Platform: PlatformWatchOS}, "generic/platform=watchOS"},
		{Params{Platform: PlatformIOS, DeviceID: "D1"}, "platform=iOS,id=D1"},
		{Params{Platform: PlatformIOSSimulator, SimulatorID: "S1"}, "platform=iOS Simulator,id=S1"},
		{Params{Platform: PlatformIOSSimulator, SimulatorID: "S1", SimulatorName: "ignored"}, "platform=iOS Simulator,id=S1"},
		{Params{Platform: PlatformTvOSSimulator, SimulatorName: "Apple TV"}, "platform=tvOS Simulator,name=Apple TV"},
		{Params{Platform: PlatformVisionOSSimulator}, "generic/platform=visionOS Simulator"},
	} {
		got, err := tc.p.Destination()
		if err != nil {
			t.Errorf("%+v: %v", tc.p, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Destination(%+v) = %q, want %q", tc.p, got, tc.want)
		}
	}
}

func TestParsePlatform(t *testing.T) {
	p, err := ParsePlatform("watchOS Simulator")
	if err != nil {
		t.Fatal(err)
	}
	if !p.IsSimulator() {
		t.Errorf("%v: IsSimulator() = false", p)
	}

	if _, err := ParsePlatform("Android"); toolerr.KindOf(err) != toolerr.KindValidation {
		t.Errorf("error = %v, want validation", err)
	}
}

func deviceParams() Params {
	return Params{ProjectPath: "/p.xcodeproj", Scheme: "MyScheme", Platform: PlatformIOS}
}

func TestRunner_BuildSuccess(t *testing.T) {
	rec := &executor.Recorder{Next: executor.Canned(&executor.Result{
		Success: true,
		Output:  "Compiling\n/src/a.swift:1:1: warning: deprecated API\n** BUILD SUCCEEDED **\n",
	})}
	r := Runner{Executor: rec, Logger: quiet}

	res, err := r.Build(context.Background(), deviceParams(), BuildOptions{
		Label:     "iOS Device Build",
		NextSteps: "Next Steps:\n1. get_device_app_path",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"✅ iOS Device Build build succeeded for scheme MyScheme.",
		"⚠️ Warning: /src/a.swift:1:1: warning: deprecated API",
		"Next Steps:\n1. get_device_app_path",
	}
	if res.IsError || !slices.Equal(texts(res), want) {
		t.Errorf("result = %q (isError %v), want %q", texts(res), res.IsError, want)
	}

	if cmds := rec.Commands(); len(cmds) != 1 || cmds[0].Label != "iOS Device Build" {
		t.Errorf("commands = %v", cmds)
	}
}

func TestRunner_BuildFailure(t *testing.T) {
	r := Runner{Executor: executor.Canned(&executor.Result{Success: false, Error: "Compilation error"}), Logger: quiet}

	res, err := r.Build(context.Background(), deviceParams(), BuildOptions{Label: "iOS Device Build"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"❌ [stderr] Compilation error",
		"❌ iOS Device Build build failed for scheme MyScheme.",
	}
	if !res.IsError || !slices.Equal(texts(res), want) {
		t.Errorf("result = %q (isError %v), want %q", texts(res), res.IsError, want)
	}
}

func TestRunner_BuildExecutorError(t *testing.T) {
	r := Runner{Executor: executor.Func(func(context.Context, executor.CommandSpec) (*executor.Result, error) {
		return nil, toolerr.DependencyMissing("xcodebuild not found", "install Xcode")
	}), Logger: quiet}
	if _, err := r.Build(context.Background(), deviceParams(), BuildOptions{Label: "x"}); toolerr.KindOf(err) != toolerr.KindDependencyMissing {
		t.Errorf("error = %v, want dependency missing", err)
	}
}

const summaryJSON = `{"title":"MyScheme Tests","result":"SUCCESS","totalTestCount":5,"passedTests":5,"failedTests":0,"skippedTests":0,"expectedFailures":0}`

// testExecutor creates the result bundle when xcodebuild runs and answers
// xcresulttool with summary.
func testExecutor(t *testing.T, testOK bool, summary *executor.Result) *executor.Recorder {
	t.Helper()
	return &executor.Recorder{Next: executor.Func(func(_ context.Context, cmd executor.CommandSpec) (*executor.Result, error) {
		if cmd.Args[0] == "xcodebuild" {
			for i, a := range cmd.Args {
				if a == "-resultBundlePath" {
					if err := os.MkdirAll(cmd.Args[i+1], 0o755); err != nil {
						t.Fatal(err)
					}
				}
			}
			if !testOK {
				return &executor.Result{Success: false, Error: "Testing failed"}, nil
			}
			return &executor.Result{Success: true, Output: "** TEST SUCCEEDED **"}, nil
		}
		return summary, nil
	})}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp directory not removed: %v", entries)
	}
}

func TestRunner_TestAppendsSummary(t *testing.T) {
	root := t.TempDir()
	rec := testExecutor(t, true, &executor.Result{Success: true, Output: summaryJSON})
	r := Runner{Executor: rec, FS: fsys.OS{Root: root}, Logger: quiet}

	res, err := r.Test(context.Background(), deviceParams(), "Test Run")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"✅ Test Run test succeeded for scheme MyScheme.",
		"\nTest Results Summary:\nTest Summary: MyScheme Tests\nOverall Result: SUCCESS\n\nTest Counts:\n  Total: 5\n  Passed: 5\n  Failed: 0\n  Skipped: 0\n  Expected Failures: 0\n",
	}
	if res.IsError || !slices.Equal(texts(res), want) {
		t.Errorf("result = %q (isError %v), want %q", texts(res), res.IsError, want)
	}

	cmds := rec.Commands()
	if len(cmds) != 2 {
		t.Fatalf("commands = %v", cmds)
	}
	args := cmds[0].Args
	bundle := args[len(args)-2]
	if filepath.Base(bundle) != "TestResults.xcresult" || !strings.HasPrefix(filepath.Base(filepath.Dir(bundle)), "xcodebuild-test-") {
		t.Errorf("result bundle = %q", bundle)
	}
	if args[len(args)-1] != "test" {
		t.Errorf("action = %q", args[len(args)-1])
	}
	if want := []string{"xcrun", "xcresulttool", "get", "test-results", "summary", "--path", bundle}; !slices.Equal(cmds[1].Args, want) {
		t.Errorf("summary command = %q, want %q", cmds[1].Args, want)
	}

	assertEmptyDir(t, root)
}

func TestRunner_TestFailureKeepsErrorFlag(t *testing.T) {
	rec := testExecutor(t, false, &executor.Result{Success: true, Output: summaryJSON})
	r := Runner{Executor: rec, FS: fsys.OS{Root: t.TempDir()}, Logger: quiet}

	res, err := r.Test(context.Background(), deviceParams(), "Test Run")
	if err != nil {
		t.Fatal(err)
	}
	got := texts(res)
	if !res.IsError || len(got) != 3 {
		t.Fatalf("result = %q (isError %v)", got, res.IsError)
	}
	if got[1] != "❌ Test Run test failed for scheme MyScheme." {
		t.Errorf("status = %q", got[1])
	}
	if !strings.Contains(got[2], "Test Results Summary:") {
		t.Errorf("summary = %q", got[2])
	}
}

func TestRunner_TestSummaryFallback(t *testing.T) {
	for name, summary := range map[string]*executor.Result{
		"malformed json": {Success: true, Output: "not json"},
		"tool failure":   {Success: false, Error: "xcresulttool: unknown"},
	} {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			r := Runner{Executor: testExecutor(t, true, summary), FS: fsys.OS{Root: root}, Logger: quiet}

			res, err := r.Test(context.Background(), deviceParams(), "Test Run")
			if err != nil {
				t.Fatal(err)
			}
			if want := []string{"✅ Test Run test succeeded for scheme MyScheme."}; res.IsError || !slices.Equal(texts(res), want) {
				t.Errorf("result = %q (isError %v), want %q", texts(res), res.IsError, want)
			}
			assertEmptyDir(t, root)
		})
	}
}

func TestRunner_TestMissingBundleFallsBack(t *testing.T) {
	rec := &executor.Recorder{Next: executor.Canned(&executor.Result{Success: true})}
	r := Runner{Executor: rec, FS: fsys.OS{Root: t.TempDir()}, Logger: quiet}

	res, err := r.Test(context.Background(), deviceParams(), "Test Run")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Content) != 1 {
		t.Errorf("result = %q", texts(res))
	}
	if n := len(rec.Commands()); n != 1 {
		t.Errorf("ran %d commands, want only xcodebuild without a bundle", n)
	}
}

func TestRunner_AppPath(t *testing.T) {
	rec := &executor.Recorder{Next: executor.Canned(&executor.Result{
		Success: true,
		Output:  "    BUILT_PRODUCTS_DIR = /build/Debug-iphoneos\n    FULL_PRODUCT_NAME = MyApp.app\n",
	})}
	r := Runner{Executor: rec, Logger: quiet}

	got, err := r.AppPath(context.Background(), deviceParams())
	if err != nil {
		t.Fatal(err)
	}
	if got != "/build/Debug-iphoneos/MyApp.app" {
		t.Errorf("AppPath() = %q", got)
	}
	if want := "xcodebuild -showBuildSettings -project /p.xcodeproj -scheme MyScheme -configuration Debug -destination generic/platform=iOS"; rec.Commands()[0].String() != want {
		t.Errorf("command = %q, want %q", rec.Commands()[0].String(), want)
	}
}

func TestRunner_AppPathFailures(t *testing.T) {
	r := Runner{Executor: executor.Canned(&executor.Result{Success: true, Output: "nothing useful"}), Logger: quiet}
	if _, err := r.AppPath(context.Background(), deviceParams()); err == nil || err.Error() != parse.ErrAppPathMessage {
		t.Errorf("error = %v, want %q", err, parse.ErrAppPathMessage)
	}

	r = Runner{Executor: executor.Canned(&executor.Result{Success: false, Error: "scheme not found\n"}), Logger: quiet}
	_, err := r.AppPath(context.Background(), deviceParams())
	if toolerr.KindOf(err) != toolerr.KindCommandFailure || err.Error() != "Failed to get app path: scheme not found" {
		t.Errorf("error = %v (kind %v)", err, toolerr.KindOf(err))
	}
}

func TestListCommand(t *testing.T) {
	cmd, err := ListCommand(Params{WorkspacePath: "/w.xcworkspace"})
	if err != nil {
		t.Fatal(err)
	}
	if want := "xcodebuild -list -workspace /w.xcworkspace"; cmd.String() != want {
		t.Errorf("String() = %q, want %q", cmd.String(), want)
	}
}
