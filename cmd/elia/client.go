package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/elia/internal/server"
)

// clientFlags are shared by the commands talking to a running server.
type clientFlags struct {
	server  string
	timeout time.Duration
	out     string
}

func (f *clientFlags) register(cmd *cobra.Command, withOut bool) {
	cmd.Flags().StringVarP(&f.server, "server", "s", envOr("ELIA_SERVER", "http://localhost:5000"), "base URL of the Elia server")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 2*time.Minute, "request timeout")
	if withOut {
		cmd.Flags().StringVarP(&f.out, "out", "o", "", "write the spoken answer to this WAV file")
	}
}

func (f *clientFlags) client() *client {
	return &client{
		base: strings.TrimRight(f.server, "/"),
		http: &http.Client{Timeout: f.timeout},
	}
}

func newAskCmd() *cobra.Command {
	var f clientFlags
	cmd := &cobra.Command{
		Use:   "ask <question.wav>",
		Short: "Ask a spoken question and print the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res server.AskResponse
			if err := f.client().postAudio(cmd.Context(), "/ask", args[0], &res); err != nil {
				return err
			}
			return finishSpoken(cmd.OutOrStdout(), res, f.out)
		},
	}
	f.register(cmd, true)
	return cmd
}

func newAttentionCmd() *cobra.Command {
	var f clientFlags
	cmd := &cobra.Command{
		Use:   "attention",
		Short: "Have Elia call the class to attention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var res server.AskResponse
			if err := f.client().do(cmd.Context(), http.MethodPost, "/attention", nil, "", &res); err != nil {
				return err
			}
			return finishSpoken(cmd.OutOrStdout(), res, f.out)
		},
	}
	f.register(cmd, true)
	return cmd
}

func newTranscribeCmd() *cobra.Command {
	var f clientFlags
	cmd := &cobra.Command{
		Use:   "transcribe <audio.wav>",
		Short: "Transcribe a WAV file without answering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res server.TranscribeResponse
			if err := f.client().postAudio(cmd.Context(), "/transcribe", args[0], &res); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	f.register(cmd, false)
	return cmd
}

func newReportCmd() *cobra.Command {
	var f clientFlags
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the emotional report over remembered questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var res server.ReportResponse
			if err := f.client().do(cmd.Context(), http.MethodGet, "/emotional_report", nil, "", &res); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	f.register(cmd, false)
	return cmd
}

// finishSpoken prints res without its audio payload and, when out is set,
// writes the decoded audio there.
func finishSpoken(w io.Writer, res server.AskResponse, out string) error {
	audio := res.Audio
	if audio != "" {
		res.Audio = fmt.Sprintf("<%d bytes base64>", len(audio))
	}
	if err := printJSON(w, res); err != nil {
		return err
	}
	if out == "" || audio == "" {
		return nil
	}
	wav, err := base64.StdEncoding.DecodeString(audio)
	if err != nil {
		return fmt.Errorf("decode audio: %w", err)
	}
	if err := os.WriteFile(out, wav, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", out, err)
	}
	fmt.Fprintf(w, "audio written to %s (%d bytes)\n", out, len(wav))
	return nil
}

// ── HTTP client ───────────────────────────────────────────────────────────────

type client struct {
	base string
	http *http.Client
}

// postAudio uploads the WAV at path as the multipart "audio" field.
func (c *client) postAudio(ctx context.Context, route, path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(server.AudioField, filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := fw.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, route, &body, mw.FormDataContentType(), out)
}

// do sends the request and decodes the JSON body into out. Error statuses
// still decode, since the server explains failures in the body; they are
// returned as errors after printing is left to the caller.
func (c *client) do(ctx context.Context, method, route string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+route, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, route, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: status %d: decode response: %w", method, route, resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 {
		return &statusError{route: route, code: resp.StatusCode, body: out}
	}
	return nil
}

// statusError reports a non-2xx answer together with its decoded body.
type statusError struct {
	route string
	code  int
	body  any
}

func (e *statusError) Error() string {
	b, _ := json.Marshal(e.body)
	return fmt.Sprintf("%s: status %d: %s", e.route, e.code, b)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
