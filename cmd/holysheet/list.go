package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JUSTIN-BOLAND/HolySheet/internal/config"
	"github.com/JUSTIN-BOLAND/HolySheet/pkg/protocol"
)

var (
	listHost    string
	listPort    int
	listTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listHost, "host", "127.0.0.1", "server host")
	listCmd.Flags().IntVar(&listPort, "port", config.DefaultPort, "server port")
	listCmd.Flags().DurationVar(&listTimeout, "timeout", 10*time.Second, "how long to wait for the response")
}

var listCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List catalogued uploads over the socket protocol",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		return runList(query, os.Stdout)
	},
}

func runList(query string, out io.Writer) error {
	addr := net.JoinHostPort(listHost, strconv.Itoa(listPort))
	conn, err := net.DialTimeout("tcp", addr, listTimeout)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(listTimeout))

	state := uuid.NewString()
	req := protocol.ListRequest{
		Payload: protocol.Payload{Code: 1, Type: protocol.TypeListRequest, State: state},
		Query:   query,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("send request: %w", err)
	}

	// Responses are correlated by state, not order; skip anything that is
	// not ours.
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()

		var head protocol.Payload
		if err := json.Unmarshal(line, &head); err != nil || head.State != state {
			continue
		}

		switch head.Type {
		case protocol.TypeListResponse:
			var resp protocol.ListResponse
			if err := json.Unmarshal(line, &resp); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			printItems(out, resp.Items)
			return nil
		case protocol.TypeError:
			var errPayload protocol.ErrorPayload
			if err := json.Unmarshal(line, &errPayload); err != nil {
				return fmt.Errorf("decode error response: %w", err)
			}
			return fmt.Errorf("server error: %s", errPayload.Message)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	return errors.New("connection closed before a response arrived")
}

func printItems(out io.Writer, items []protocol.ListItem) {
	if len(items) == 0 {
		fmt.Fprintln(out, "no uploads found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tKIND\tMODIFIED\tHASH")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			item.Name,
			humanize.Bytes(uint64(item.Size)),
			kindLabel(item.KindCode),
			modifiedLabel(item.ModifiedAtMillis),
			item.ContentHash,
		)
	}
	w.Flush()
}

func kindLabel(code int) string {
	switch code {
	case 1:
		return "folder"
	case 2:
		return "document"
	default:
		return "other"
	}
}

func modifiedLabel(millis int64) string {
	if millis == 0 {
		return "-"
	}
	return time.UnixMilli(millis).UTC().Format(time.RFC3339)
}
