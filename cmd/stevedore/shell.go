package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/stevedore/pkg/node"
)

const shellReady = "__stevedore_shell_ready__"

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Open an interactive shell on a node",
	Long: `Shell opens a line-oriented shell on one node. Each line typed is sent to
the node and its output is printed as it arrives. End input to exit.`,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
	addClusterFlags(shellCmd)
	shellCmd.Flags().String("node", "", "Node to open the shell on")
	_ = shellCmd.MarkFlagRequired("node")
}

func runShell(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("node")

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	h, ok := a.proxy.Node(name)
	if !ok {
		return fmt.Errorf("unknown node %q", name)
	}

	ctx, cancel := signalContext()
	defer cancel()

	sh, err := h.OpenShell(ctx)
	if err != nil {
		return err
	}
	defer sh.Close()

	if err := sh.Send("echo " + shellReady); err != nil {
		return err
	}
	if _, err := node.ReadUntil(sh, shellReady, 30*time.Second); err != nil {
		return err
	}
	fmt.Printf("Connected to %s (%s)\n", name, h.Endpoint().Addr())

	go func() {
		for line := range sh.Lines() {
			fmt.Println(line)
		}
		cancel()
	}()

	input := make(chan string)
	go func() {
		defer close(input)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-input:
			if !ok {
				return nil
			}
			if err := sh.Send(line); err != nil {
				return err
			}
		}
	}
}
