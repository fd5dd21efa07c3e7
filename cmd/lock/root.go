package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/ValentinKolb/gridlock/cmd/util"
	"github.com/ValentinKolb/gridlock/lib/lockmgr"
	"github.com/ValentinKolb/gridlock/lib/membership"
	"github.com/ValentinKolb/gridlock/rpc/client"
	"github.com/ValentinKolb/gridlock/rpc/serializer"
	"github.com/ValentinKolb/gridlock/rpc/transport"
	"github.com/spf13/cobra"
)

var (
	rpcLockMgr    lockmgr.ILockManager
	rpcTransport  transport.IRPCClientTransport
	rpcSerializer serializer.IRPCSerializer
	owner         lockmgr.LockOwner
	waitFor       time.Duration

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:               "lock",
		Short:             "Perform exclusive lock operations",
		PersistentPreRunE: setupLockClient,
	}

	// acquireCmd represents the acquire command
	acquireCmd = &cobra.Command{
		Use:   "acquire [resource]",
		Short: "Acquire an exclusive lock",
		Long:  "Acquire an exclusive lock. If the lock is held by another owner, the caller is registered as pending. With --wait the command retries until the lock is granted or the time is up.",
		Args:  cobra.ExactArgs(1),
		RunE:  runAcquire,
	}

	// releaseCmd represents the release command
	releaseCmd = &cobra.Command{
		Use:   "release [resource]",
		Short: "Release a previously acquired lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			released, err := rpcLockMgr.ReleaseExclusive(args[0], owner)
			if err != nil {
				return fmt.Errorf("failed to release lock: %v", err)
			}
			fmt.Printf("released=%v\n", released)
			return nil
		},
	}

	// cancelCmd represents the cancel command
	cancelCmd = &cobra.Command{
		Use:   "cancel [resource]",
		Short: "Stop waiting for a lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cancelled, err := rpcLockMgr.CancelExclusive(args[0], owner)
			if err != nil {
				return fmt.Errorf("failed to cancel: %v", err)
			}
			fmt.Printf("cancelled=%v\n", cancelled)
			return nil
		},
	}

	// ownerCmd represents the owner command
	ownerCmd = &cobra.Command{
		Use:   "owner [resource]",
		Short: "Print the current owner of a lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			current, ok, err := rpcLockMgr.GetOwner(args[0])
			if err != nil {
				return fmt.Errorf("failed to get owner: %v", err)
			}
			if !ok {
				fmt.Println("owner=none")
				return nil
			}
			fmt.Printf("owner=%s\n", current)
			return nil
		},
	}

	// pendingCmd represents the pending command
	pendingCmd = &cobra.Command{
		Use:   "pending [resource]",
		Short: "Print the owners waiting for a lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			owners, err := rpcLockMgr.PendingOwners(args[0])
			if err != nil {
				return fmt.Errorf("failed to get pending owners: %v", err)
			}
			fmt.Printf("pending=%d\n", len(owners))
			for _, o := range owners {
				fmt.Println(o)
			}
			return nil
		},
	}

	// statusCmd represents the status command
	statusCmd = &cobra.Command{
		Use:   "status [resource]",
		Short: "Print whether a resource is locked",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			locked, err := rpcLockMgr.IsLocked(args[0])
			if err != nil {
				return fmt.Errorf("failed to get status: %v", err)
			}
			fmt.Printf("locked=%v\n", locked)
			return nil
		},
	}

	// describeCmd represents the describe command
	describeCmd = &cobra.Command{
		Use:   "describe [resource]",
		Short: "Print the full lock state of a resource (exclusive or read/write)",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			desc, err := rpcLockMgr.Describe(args[0])
			if err != nil {
				return fmt.Errorf("failed to describe: %v", err)
			}
			fmt.Println(desc)
			return nil
		},
	}

	// evictCmd represents the evict-member command
	evictCmd = &cobra.Command{
		Use:   "evict-member [name]",
		Short: "Release all locks of a cluster member",
		Long:  "Release all locks held or requested by the named member in every resource group, as if the member had left the cluster.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			memberID := membership.MemberID(args[0])
			if err := client.EvictMember(memberID, rpcTransport, rpcSerializer); err != nil {
				return fmt.Errorf("failed to evict member: %v", err)
			}
			fmt.Printf("evicted=%d\n", memberID)
			return nil
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add subcommands to lock command
	LockCommands.AddCommand(acquireCmd, releaseCmd, cancelCmd, ownerCmd, pendingCmd, statusCmd, describeCmd, evictCmd)

	// Add common RPC flags to the lock command
	util.SetupRPCClientFlags(LockCommands)
	util.SetupOwnerFlags(LockCommands)

	// Add flags specific to acquire
	acquireCmd.Flags().DurationVar(&waitFor, "wait", 0, "How long to wait for the lock (0 returns immediately)")
}

// setupLockClient initializes the lock manager client
func setupLockClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	if owner, err = util.GetOwner(); err != nil {
		return err
	}
	if rpcSerializer, err = util.GetSerializer(); err != nil {
		return err
	}
	if rpcTransport, err = util.GetTransport(); err != nil {
		return err
	}

	rpcLockMgr, err = client.NewRPCLockMgr(util.GetGroup(), *util.GetClientConfig(), rpcTransport, rpcSerializer)
	return err
}

// runAcquire handles the acquire lock command
func runAcquire(_ *cobra.Command, args []string) error {
	resource := args[0]

	if waitFor <= 0 {
		acquired, err := rpcLockMgr.AcquireExclusive(resource, owner)
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %v", err)
		}
		fmt.Printf("acquired=%v, owner=%s\n", acquired, owner)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	if err := lockmgr.LockExclusive(ctx, rpcLockMgr, resource, owner); err != nil {
		if ctx.Err() != nil {
			fmt.Printf("acquired=false, owner=%s\n", owner)
			return nil
		}
		return fmt.Errorf("failed to acquire lock: %v", err)
	}
	fmt.Printf("acquired=true, owner=%s\n", owner)
	return nil
}
