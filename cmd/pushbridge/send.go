package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pushbridge/internal/bridge"
)

type sendFlags struct {
	raw      string
	message  string
	title    string
	sound    string
	priority int
	url      string
	urlTitle string
	device   string
	token    string
}

// payload builds the request object from flags; --json wins when set.
func (f *sendFlags) payload() (json.RawMessage, error) {
	if f.raw != "" {
		if !json.Valid([]byte(f.raw)) {
			return nil, errors.New("--json is not valid JSON")
		}
		return json.RawMessage(f.raw), nil
	}
	if f.message == "" {
		return nil, errors.New("--message or --json is required")
	}
	req := map[string]any{"message": f.message}
	for k, v := range map[string]string{
		"title": f.title, "sound": f.sound, "url": f.url,
		"url_title": f.urlTitle, "device": f.device, "token": f.token,
	} {
		if v != "" {
			req[k] = v
		}
	}
	if f.priority != 0 {
		req["priority"] = f.priority
	}
	return json.Marshal(req)
}

func sendCommand(flags *rootFlags) *cobra.Command {
	f := &sendFlags{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one notification through the configured instance",
		Example: `  pushbridge send --message "backup done" --title NAS
  pushbridge send --json '{"message":"door open","priority":2,"retry":30}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := f.payload()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Prepare(cmd.Context()); err != nil {
				return err
			}
			host, _ := os.Hostname()
			out, reply, err := a.Handler().Handle(cmd.Context(), bridge.Command{
				Command: bridge.CommandSend,
				Message: payload,
				From:    "cli:" + host,
			})
			if err != nil {
				return err
			}
			if out != bridge.Delivered {
				return fmt.Errorf("request %s", out)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(reply); err != nil {
				return err
			}
			if reply.Error != nil {
				return errors.New(*reply.Error)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.raw, "json", "", "raw request (string or object)")
	fl.StringVarP(&f.message, "message", "m", "", "message body")
	fl.StringVarP(&f.title, "title", "t", "", "title")
	fl.StringVar(&f.sound, "sound", "", "sound name")
	fl.IntVarP(&f.priority, "priority", "p", 0, "priority -2..2")
	fl.StringVar(&f.url, "url", "", "supplementary url")
	fl.StringVar(&f.urlTitle, "url-title", "", "title for --url")
	fl.StringVar(&f.device, "device", "", "target device")
	fl.StringVar(&f.token, "token", "", "application token override")
	return cmd
}
