package rwlock

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/gridlock/cmd/util"
	"github.com/ValentinKolb/gridlock/lib/lockmgr"
	"github.com/ValentinKolb/gridlock/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcLockMgr lockmgr.ILockManager
	owner      lockmgr.LockOwner
	waitFor    time.Duration
	queue      bool
	ticket     uint64

	// RWLockCommands represents the read/write lock command group
	RWLockCommands = &cobra.Command{
		Use:               "rwlock",
		Short:             "Perform read/write lock operations",
		PersistentPreRunE: setupRWLockClient,
	}

	readCmd = &cobra.Command{
		Use:   "read [resource]",
		Short: "Acquire a read lock",
		Long:  "Acquire a read lock. Readers are denied while a writer holds the lock or is queued. The printed ticket identifies the grant for read-unlock.",
		Args:  cobra.ExactArgs(1),
		RunE:  runRead,
	}

	readUnlockCmd = &cobra.Command{
		Use:   "read-unlock [resource]",
		Short: "Release a read lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			noMoreReaders, err := rpcLockMgr.ReleaseRead(args[0], owner, ticket)
			if err != nil {
				return fmt.Errorf("failed to release read lock: %v", err)
			}
			fmt.Printf("released=true, noMoreReaders=%v\n", noMoreReaders)
			return nil
		},
	}

	writeCmd = &cobra.Command{
		Use:   "write [resource]",
		Short: "Acquire the write lock",
		Long:  "Acquire the write lock. With --queue a denied writer stays queued and blocks new readers. With --wait the command retries until the lock is granted or the time is up.",
		Args:  cobra.ExactArgs(1),
		RunE:  runWrite,
	}

	writeUnlockCmd = &cobra.Command{
		Use:   "write-unlock [resource]",
		Short: "Release the write lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			empty, err := rpcLockMgr.ReleaseWrite(args[0], owner)
			if err != nil {
				return fmt.Errorf("failed to release write lock: %v", err)
			}
			fmt.Printf("released=true, empty=%v\n", empty)
			return nil
		},
	}

	cancelWriteCmd = &cobra.Command{
		Use:   "cancel-write [resource]",
		Short: "Remove a queued write request",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cancelled, err := rpcLockMgr.CancelWrite(args[0], owner)
			if err != nil {
				return fmt.Errorf("failed to cancel write: %v", err)
			}
			fmt.Printf("cancelled=%v\n", cancelled)
			return nil
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	RWLockCommands.AddCommand(readCmd, readUnlockCmd, writeCmd, writeUnlockCmd, cancelWriteCmd)

	util.SetupRPCClientFlags(RWLockCommands)
	util.SetupOwnerFlags(RWLockCommands)

	readCmd.Flags().DurationVar(&waitFor, "wait", 0, "How long to wait for the lock (0 returns immediately)")
	writeCmd.Flags().DurationVar(&waitFor, "wait", 0, "How long to wait for the lock (0 returns immediately)")
	writeCmd.Flags().BoolVar(&queue, "queue", false, "Stay queued if the lock is not granted")
	readUnlockCmd.Flags().Uint64Var(&ticket, "ticket", 0, "Ticket returned by read (0 releases any read lock of the owner)")
}

func setupRWLockClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	if owner, err = util.GetOwner(); err != nil {
		return err
	}
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}
	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	rpcLockMgr, err = client.NewRPCLockMgr(util.GetGroup(), *util.GetClientConfig(), t, s)
	return err
}

func runRead(_ *cobra.Command, args []string) error {
	resource := args[0]

	if waitFor <= 0 {
		granted, t, err := rpcLockMgr.AcquireRead(resource, owner)
		if err != nil {
			return fmt.Errorf("failed to acquire read lock: %v", err)
		}
		fmt.Printf("acquired=%v, ticket=%d\n", granted, t)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	t, err := lockmgr.LockRead(ctx, rpcLockMgr, resource, owner)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Println("acquired=false, ticket=0")
			return nil
		}
		return fmt.Errorf("failed to acquire read lock: %v", err)
	}
	fmt.Printf("acquired=true, ticket=%d\n", t)
	return nil
}

func runWrite(_ *cobra.Command, args []string) error {
	resource := args[0]

	if waitFor <= 0 {
		granted, err := rpcLockMgr.AcquireWrite(resource, owner, queue)
		if err != nil {
			return fmt.Errorf("failed to acquire write lock: %v", err)
		}
		fmt.Printf("acquired=%v, owner=%s\n", granted, owner)
		return nil
	}

	// waiting always queues, a queued writer is cancelled when the time is up
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	if err := lockmgr.LockWrite(ctx, rpcLockMgr, resource, owner); err != nil {
		if ctx.Err() != nil {
			fmt.Printf("acquired=false, owner=%s\n", owner)
			return nil
		}
		return fmt.Errorf("failed to acquire write lock: %v", err)
	}
	fmt.Printf("acquired=true, owner=%s\n", owner)
	return nil
}
