package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"tilecensus.ai/internal/protocol"
)

func latestCmd(args []string) {
	fs := flag.NewFlagSet("latest", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8095", "server base url")
	validate := fs.Bool("validate", false, "validate the report against the CENSUS_REPORT schema")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/v1/census/latest"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
	if *validate {
		if err := protocol.ValidateReport(b); err != nil {
			fmt.Fprintln(os.Stderr, "schema:", err)
			os.Exit(1)
		}
	}
}

func triggerCmd(args []string) {
	fs := flag.NewFlagSet("trigger", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8095", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/v1/census"
	req, _ := http.NewRequest(http.MethodPost, u, nil)
	cl := &http.Client{Timeout: 2 * time.Minute}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode == http.StatusConflict {
		os.Exit(3)
	}
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
