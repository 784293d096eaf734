// Command taskctl is a CLI client for the task tracker API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/pflag"

	"github.com/and161185/tasktracker/internal/convert"
)

// ---- token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "tasktracker")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "tasktracker")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tokenFile{AccessToken: tok, ExpiresAt: exp}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(tokenPath(), b, 0o600)
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", errors.New("not logged in (run: taskctl login)")
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

// ---- output ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func printTasks(w io.Writer, ts []convert.TaskView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDONE\tPRIO\tDUE\tTITLE")
	for _, t := range ts {
		done := " "
		if t.Completed {
			done = "x"
		}
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t[%s]\t%s\t%s\t%s\n", t.ID, done, t.Priority, due, t.Title)
	}
	_ = tw.Flush()
}

// parseDue accepts RFC 3339 or a bare date (midnight UTC).
func parseDue(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("bad due date %q (want YYYY-MM-DD or RFC 3339)", s)
}

func usage(w io.Writer) {
	fmt.Fprintf(w, `taskctl CLI
Usage:
  taskctl [--addr URL] [--json] <cmd> [args]

Commands:
  version
  register  -u <username> -e <email> -p <password>   (saves token)
  login     -e <email> -p <password>                 (saves token)
  logout
  whoami
  add       <title> [-d desc] [-P low|medium|high] [--due date]
  list      [--pending]
  done      <id> [--undo]
  edit      <id> [-t title] [-d desc] [-P prio] [--due date | --clear-due] [--version N]
  rm        <id>
  stats
`)
}

var (
	version   = "dev"
	buildDate = "unknown"
)

var errUsage = errors.New("usage")

// run executes one command; args exclude the program name.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	gfs := pflag.NewFlagSet("taskctl", pflag.ContinueOnError)
	gfs.SetInterspersed(false)
	addr := gfs.String("addr", envOr("TASKCTL_ADDR", "http://localhost:8080"), "API base URL")
	asJSON := gfs.Bool("json", false, "print raw JSON")
	gfs.Usage = func() { usage(gfs.Output()) }
	if err := gfs.Parse(args); err != nil {
		return err
	}
	if gfs.NArg() < 1 {
		usage(stdout)
		return errUsage
	}
	cmd, rest := gfs.Arg(0), gfs.Args()[1:]

	authed := func() (*client, error) {
		tok, err := loadToken()
		if err != nil {
			return nil, err
		}
		return newClient(*addr, tok), nil
	}

	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "taskctl %s (%s)\n", version, buildDate)
		return nil

	case "register":
		fs := pflag.NewFlagSet("register", pflag.ContinueOnError)
		u := fs.StringP("username", "u", "", "username")
		e := fs.StringP("email", "e", "", "email")
		p := fs.StringP("password", "p", "", "password")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *u == "" || *e == "" || *p == "" {
			return errors.New("need -u, -e and -p")
		}
		out, err := newClient(*addr, "").Register(ctx, *u, *e, *p)
		if err != nil {
			return err
		}
		if err := saveToken(out.Token, out.ExpiresAt); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "registered %s (%s)\n", out.User.Username, out.User.ID)
		return nil

	case "login":
		fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
		e := fs.StringP("email", "e", "", "email")
		p := fs.StringP("password", "p", "", "password")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *e == "" || *p == "" {
			return errors.New("need -e and -p")
		}
		out, err := newClient(*addr, "").Login(ctx, *e, *p)
		if err != nil {
			return err
		}
		if err := saveToken(out.Token, out.ExpiresAt); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "ok")
		return nil

	case "logout":
		if err := os.Remove(tokenPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		fmt.Fprintln(stdout, "ok")
		return nil

	case "whoami":
		c, err := authed()
		if err != nil {
			return err
		}
		u, err := c.Me(ctx)
		if err != nil {
			return err
		}
		if *asJSON {
			printJSON(stdout, u)
			return nil
		}
		fmt.Fprintf(stdout, "%s <%s> %s\n", u.Username, u.Email, u.ID)
		return nil

	case "add":
		fs := pflag.NewFlagSet("add", pflag.ContinueOnError)
		desc := fs.StringP("desc", "d", "", "description")
		prio := fs.StringP("priority", "P", "", "low, medium or high")
		due := fs.String("due", "", "due date")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		title := strings.Join(fs.Args(), " ")
		if title == "" {
			return errors.New("need a title")
		}
		req := convert.CreateTaskRequest{Title: title}
		if fs.Changed("desc") {
			req.Description = desc
		}
		if *prio != "" {
			req.Priority = prio
		}
		d, err := parseDue(*due)
		if err != nil {
			return err
		}
		req.DueDate = d

		c, err := authed()
		if err != nil {
			return err
		}
		t, err := c.CreateTask(ctx, req)
		if err != nil {
			return err
		}
		if *asJSON {
			printJSON(stdout, t)
			return nil
		}
		fmt.Fprintln(stdout, t.ID)
		return nil

	case "list":
		fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
		pending := fs.Bool("pending", false, "only incomplete tasks")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		c, err := authed()
		if err != nil {
			return err
		}
		ts, err := c.ListTasks(ctx)
		if err != nil {
			return err
		}
		if *pending {
			kept := ts[:0]
			for _, t := range ts {
				if !t.Completed {
					kept = append(kept, t)
				}
			}
			ts = kept
		}
		if *asJSON {
			printJSON(stdout, ts)
			return nil
		}
		printTasks(stdout, ts)
		return nil

	case "done":
		fs := pflag.NewFlagSet("done", pflag.ContinueOnError)
		undo := fs.Bool("undo", false, "mark as not completed")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		id, err := taskID(fs.Args())
		if err != nil {
			return err
		}
		completed := !*undo
		return update(ctx, authed, stdout, *asJSON, id, convert.UpdateTaskRequest{Completed: &completed})

	case "edit":
		fs := pflag.NewFlagSet("edit", pflag.ContinueOnError)
		title := fs.StringP("title", "t", "", "new title")
		desc := fs.StringP("desc", "d", "", "new description")
		prio := fs.StringP("priority", "P", "", "low, medium or high")
		due := fs.String("due", "", "new due date")
		clearDue := fs.Bool("clear-due", false, "remove the due date")
		ver := fs.Int64("version", 0, "fail if the task changed since this version")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		id, err := taskID(fs.Args())
		if err != nil {
			return err
		}
		req := convert.UpdateTaskRequest{ClearDueDate: *clearDue}
		if fs.Changed("title") {
			req.Title = title
		}
		if fs.Changed("desc") {
			req.Description = desc
		}
		if fs.Changed("priority") {
			req.Priority = prio
		}
		if fs.Changed("version") {
			req.Version = ver
		}
		if req.DueDate, err = parseDue(*due); err != nil {
			return err
		}
		return update(ctx, authed, stdout, *asJSON, id, req)

	case "rm":
		id, err := taskID(rest)
		if err != nil {
			return err
		}
		c, err := authed()
		if err != nil {
			return err
		}
		if err := c.DeleteTask(ctx, id); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "deleted")
		return nil

	case "stats":
		c, err := authed()
		if err != nil {
			return err
		}
		st, err := c.Stats(ctx)
		if err != nil {
			return err
		}
		if *asJSON {
			printJSON(stdout, st)
			return nil
		}
		fmt.Fprintf(stdout, "total %d, completed %d, pending %d, high priority %d\n",
			st.Total, st.Completed, st.Pending, st.HighPriority)
		return nil

	default:
		usage(stdout)
		return errUsage
	}
}

func update(ctx context.Context, authed func() (*client, error), stdout io.Writer, asJSON bool, id uuid.UUID, req convert.UpdateTaskRequest) error {
	c, err := authed()
	if err != nil {
		return err
	}
	t, err := c.UpdateTask(ctx, id, req)
	if err != nil {
		return err
	}
	if asJSON {
		printJSON(stdout, t)
		return nil
	}
	printTasks(stdout, []convert.TaskView{t})
	return nil
}

func taskID(args []string) (uuid.UUID, error) {
	if len(args) != 1 {
		return uuid.Nil, errors.New("need exactly one task id")
	}
	id, err := uuid.FromString(args[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("bad task id %q", args[0])
	}
	return id, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// main dispatches subcommands against the configured API.
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fail(err)
	}
}

func fail(err error) {
	switch {
	case errors.Is(err, pflag.ErrHelp):
		os.Exit(0)
	case errors.Is(err, errUsage):
		os.Exit(2)
	}
	var ae *apiError
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "api error: %v\n", ae)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
