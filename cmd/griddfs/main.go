// Command griddfs is the GridDFS command-line client: put, get, ls, rm,
// abort-upload, and status, mirroring the commands of the original
// Python CLI (original_source/griddfs_cli.py) against the Go client core.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/griddfs/griddfs/internal/client"
	"github.com/griddfs/griddfs/internal/transport/natsbus"
	"github.com/griddfs/griddfs/internal/wire"
	"github.com/griddfs/griddfs/pkg/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "griddfs",
	Short: "GridDFS command-line client",
}

func init() {
	rootCmd.PersistentFlags().String("coordinator", "http://127.0.0.1:8080", "coordinator base URL")
	rootCmd.PersistentFlags().String("principal", config.Getenv("GRIDDFS_PRINCIPAL", "default"), "principal to act as")
	rootCmd.PersistentFlags().String("nats-url", "nats://127.0.0.1:4222", "message bus URL, for block transfer")

	rootCmd.AddCommand(putCmd, getCmd, lsCmd, rmCmd, statusCmd, abortUploadCmd)
}

func newClient(cmd *cobra.Command) (*client.Client, func(), error) {
	coordinatorURL, _ := cmd.Flags().GetString("coordinator")
	principal, _ := cmd.Flags().GetString("principal")
	natsURL, _ := cmd.Flags().GetString("nats-url")

	bus, err := natsbus.Connect(natsURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to bus: %w", err)
	}
	cfg := config.Default()
	c := client.New(coordinatorURL, principal, cfg.BlockSize, cfg.RequestTimeout, bus)
	return c, func() { bus.Close() }, nil
}

var putCmd = &cobra.Command{
	Use:   "put LOCAL_FILE REMOTE_PATH",
	Short: "Upload a file to GridDFS",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeFn, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		uploadID, err := c.Put(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}
		fmt.Printf("uploaded %s -> %s (upload_id: %s)\n", args[0], args[1], uploadID)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get REMOTE_PATH LOCAL_FILE",
	Short: "Download a file from GridDFS",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeFn, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := c.Get(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("download failed: %w", err)
		}
		fmt.Printf("downloaded %s -> %s\n", args[0], args[1])
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [PREFIX]",
	Short: "List files under a path prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeFn, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		files, err := c.List(cmd.Context(), prefix)
		if err != nil {
			return fmt.Errorf("list failed: %w", err)
		}
		if len(files) == 0 {
			fmt.Println("no files found")
			return nil
		}
		for _, f := range files {
			fmt.Println(string(f))
		}
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm REMOTE_PATH",
	Short: "Delete a file from GridDFS",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, closeFn, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := c.Delete(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

var abortUploadCmd = &cobra.Command{
	Use:   "abort-upload UPLOAD_ID",
	Short: "Abort a pending upload session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		coordinatorURL, _ := cmd.Flags().GetString("coordinator")
		principal, _ := cmd.Flags().GetString("principal")

		var resp struct{}
		err := wire.PostJSON(cmd.Context(), coordinatorURL+"/admin/uploads/"+args[0]+"/abort", principal, nil, &resp)
		if err != nil {
			return fmt.Errorf("abort failed: %w", err)
		}
		fmt.Printf("aborted upload %s\n", args[0])
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show coordinator and storage node status",
	RunE: func(cmd *cobra.Command, args []string) error {
		coordinatorURL, _ := cmd.Flags().GetString("coordinator")
		principal, _ := cmd.Flags().GetString("principal")

		var resp struct {
			Nodes []struct {
				Node struct {
					NodeID   string `json:"node_id"`
					Address  string `json:"address"`
					Used     int64  `json:"used"`
					Capacity int64  `json:"capacity"`
				} `json:"Node"`
				Status string `json:"Status"`
			} `json:"nodes"`
		}
		if err := wire.GetJSON(cmd.Context(), coordinatorURL+"/system/status", principal, &resp); err != nil {
			return fmt.Errorf("status failed: %w", err)
		}
		if len(resp.Nodes) == 0 {
			fmt.Println("no storage nodes registered")
			return nil
		}
		fmt.Printf("%-20s %-25s %-8s %12s %12s\n", "NODE", "ADDRESS", "STATUS", "USED", "CAPACITY")
		for _, n := range resp.Nodes {
			fmt.Printf("%-20s %-25s %-8s %12d %12d\n", n.Node.NodeID, n.Node.Address, n.Status, n.Node.Used, n.Node.Capacity)
		}
		return nil
	},
}
