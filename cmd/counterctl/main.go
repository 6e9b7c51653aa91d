/*
 * MIT License
 *
 * Copyright (c) 2024 Salim Abouaram
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Command counterctl drives the counter demonstration server from the
// command line: single get/increment/decrement calls, and a bench
// subcommand running 12 concurrent callers that each issue 100
// increment(1) calls against one shared connection.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/sabouaram/hlrpc/certificates"
	"github.com/sabouaram/hlrpc/examples/counter"
	"github.com/sabouaram/hlrpc/logging"
	"github.com/sabouaram/hlrpc/rpcclient"
)

func main() {
	var (
		host     string
		insecure bool
	)

	root := &cobra.Command{Use: "counterctl", Short: "Drive the counter demonstration server"}
	root.PersistentFlags().StringVar(&host, "host", "localhost:8443", "server host:port")
	root.PersistentFlags().BoolVar(&insecure, "insecure", true, "skip TLS certificate verification, for the self-signed demo server")

	root.AddCommand(
		getCmd(&host, &insecure),
		incrementCmd(&host, &insecure),
		decrementCmd(&host, &insecure),
		benchCmd(&host, &insecure),
	)

	if err := root.Execute(); err != nil {
		logging.Base().WithError(err).Error("counterctl: exiting with error")
		os.Exit(1)
	}
}

func dial(ctx context.Context, host string, insecure bool) (*counter.Client, error) {
	tlsCfg := certificates.ClientInsecure()
	if !insecure {
		var err error
		tlsCfg, err = certificates.ClientTrust()
		if err != nil {
			return nil, err
		}
	}

	c := counter.NewClient(rpcclient.Config{Host: host, TLSConfig: tlsCfg})
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func getCmd(host *string, insecure *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Read the current counter value",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := dial(cmd.Context(), *host, *insecure)
			if err != nil {
				return err
			}
			defer c.Shutdown()

			v, err := c.Get(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		},
	}
}

func incrementCmd(host *string, insecure *bool) *cobra.Command {
	var amount uint32
	cmd := &cobra.Command{
		Use:   "increment",
		Short: "Increment the counter and print the resulting value",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := dial(cmd.Context(), *host, *insecure)
			if err != nil {
				return err
			}
			defer c.Shutdown()

			v, err := c.Increment(cmd.Context(), amount)
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&amount, "amount", 1, "amount to increment by")
	return cmd
}

func decrementCmd(host *string, insecure *bool) *cobra.Command {
	var amount uint32
	cmd := &cobra.Command{
		Use:   "decrement",
		Short: "Decrement the counter and print the resulting value",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := dial(cmd.Context(), *host, *insecure)
			if err != nil {
				return err
			}
			defer c.Shutdown()

			v, err := c.Decrement(cmd.Context(), amount)
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&amount, "amount", 1, "amount to decrement by")
	return cmd
}

func benchCmd(host *string, insecure *bool) *cobra.Command {
	var numTasks, numPerTask int
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run concurrent callers hammering increment(1) on one shared connection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBench(cmd.Context(), *host, *insecure, numTasks, numPerTask)
		},
	}
	cmd.Flags().IntVar(&numTasks, "num-tasks", 12, "number of concurrent callers sharing one connection")
	cmd.Flags().IntVar(&numPerTask, "num-per-task", 100, "increments issued by each caller")
	return cmd
}

func runBench(ctx context.Context, host string, insecure bool, numTasks, numPerTask int) error {
	c, err := dial(ctx, host, insecure)
	if err != nil {
		return err
	}
	defer c.Shutdown()

	first, err := c.Get(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("counterctl: first value %d, running %d tasks x %d increments\n", first, numTasks, numPerTask)

	var wg sync.WaitGroup
	for i := 0; i < numTasks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numPerTask; j++ {
				if _, err := c.Increment(ctx, 1); err != nil {
					logging.Base().WithError(err).Warn("counterctl: increment failed")
				}
			}
		}()
	}
	wg.Wait()

	final, err := c.Get(ctx)
	if err != nil {
		return err
	}

	want := first + uint32(numTasks*numPerTask)
	fmt.Printf("counterctl: final value %d (want %d)\n", final, want)
	if final != want {
		return fmt.Errorf("counterctl: final value %d != expected %d", final, want)
	}
	return nil
}
