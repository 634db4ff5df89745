package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	doRequest(http.MethodGet, adminURL(*baseURL, "/admin/v1/state"), 5*time.Second)
}

func snapshotCmd(args []string) {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	doRequest(http.MethodPost, adminURL(*baseURL, "/admin/v1/snapshot"), 10*time.Second)
}

// auditsCmd asks a running server for the audit trail of one cell.
func auditsCmd(args []string) {
	fs := flag.NewFlagSet("audits", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	pos := fs.String("pos", "", "cell position x,y,z (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*pos) == "" {
		fmt.Fprintln(os.Stderr, "missing -pos")
		os.Exit(2)
	}
	u := adminURL(*baseURL, "/admin/v1/audits") + "?pos=" + url.QueryEscape(*pos)
	doRequest(http.MethodGet, u, 5*time.Second)
}

func adminURL(base, path string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + path
}

func doRequest(method, u string, timeout time.Duration) {
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(2)
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
