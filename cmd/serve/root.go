package serve

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/gridlock/cmd/util"
	"github.com/ValentinKolb/gridlock/lib/lockmgr"
	"github.com/ValentinKolb/gridlock/lib/util"
	"github.com/ValentinKolb/gridlock/rpc/common"
	"github.com/ValentinKolb/gridlock/rpc/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the gridlock server",
		Long:    `Start the gridlock server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is GRIDLOCK_<flag> (e.g. GRIDLOCK_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "store"
	ServeCmd.PersistentFlags().String(key, string(common.StoreTypeLocal), cmdUtil.WrapString("The store holding the lock state. One of: lstore (in memory, single node), dstore (replicated with RAFT)"))

	key = "partitions"
	ServeCmd.PersistentFlags().Uint64(key, 16, cmdUtil.WrapString("Number of partitions the resources are distributed over. Must be the same on all nodes"))

	key = "base-shard-id"
	ServeCmd.PersistentFlags().Uint64(key, 100, cmdUtil.WrapString("(dstore) The RAFT shard id of partition 0. Partition p uses shard base-shard-id+p"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(dstore) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. \nOther raft configuration parameters (ElectionRTT=value/10, HeartbeatRTT=value/100) are derived from this value"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("(dstore) SnapshotEntries defines how often the state machine should be snapshotted automatically. It is defined in terms of the number of applied Raft log entries. SnapshotEntries can be set to 0 to disable such automatic snapshotting (not recommended)"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("(dstore) CompactionOverhead defines the number of snapshots that should be retained in the system. Recommended value is about 1/2 of SnapshotEntries"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("(dstore) DataDir is the directory used for storing the snapshots"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dstore) ReplicaID is the unique identifier for this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dstore) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("(dstore) Timeout in seconds"))

	key = "node-name"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Unique name of this node in the gossip membership. The member id of the node is derived from it"))

	key = "gossip-bind"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The host:port the gossip membership listens on (e.g. 0.0.0.0:7946). Gossip is disabled if empty"))

	key = "gossip-seeds"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated gossip addresses of existing nodes to join"))

	key = "cleanup-debounce"
	ServeCmd.PersistentFlags().Duration(key, lockmgr.DefaultDebounce, cmdUtil.WrapString("Delay between a partition arrival and the sweep of the locks of departed members"))

	key = "sweep-rate"
	ServeCmd.PersistentFlags().Float64(key, 0, cmdUtil.WrapString("Maximum number of cleanup sweeps per second (0 for no limit)"))

	key = "sweep-timeout"
	ServeCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("Upper bound for a single cleanup sweep (0 for no limit)"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080)"))

	key = "max-frame"
	ServeCmd.PersistentFlags().Int(key, common.DefaultMaxFrameSize/1024, cmdUtil.WrapString("The largest request the server accepts (in KB)"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (tcp only)"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 30, cmdUtil.WrapString("The keepalive interval (in seconds, tcp and grpc)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.StoreType = common.StoreType(viper.GetString("store"))
	serveCmdConfig.PartitionCount = viper.GetUint64("partitions")
	serveCmdConfig.BaseShardID = viper.GetUint64("base-shard-id")
	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.NodeName = viper.GetString("node-name")
	serveCmdConfig.GossipBind = viper.GetString("gossip-bind")
	serveCmdConfig.GossipSeeds = splitList(viper.GetString("gossip-seeds"))
	serveCmdConfig.CleanupDebounce = viper.GetDuration("cleanup-debounce")
	serveCmdConfig.SweepRate = viper.GetFloat64("sweep-rate")
	serveCmdConfig.SweepTimeout = viper.GetDuration("sweep-timeout")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	serveCmdConfig.Transport = common.DefaultTransportConfig()
	serveCmdConfig.Transport.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.Transport.MaxFrameSize = viper.GetInt("max-frame") * 1024
	serveCmdConfig.Transport.TCPNoDelay = viper.GetBool("tcp-nodelay")
	serveCmdConfig.Transport.TCPKeepAliveSec = viper.GetInt("tcp-keepalive")

	// parse replica id
	if id := viper.GetString("replica-id"); id != "" {
		serveCmdConfig.ReplicaID = util.HashString(id, 0)
	}

	// parse cluster members
	if clusterMembers := viper.GetString("cluster-members"); clusterMembers != "" {
		serveCmdConfig.ClusterMembers = make(map[uint64]string)
		for _, member := range splitList(clusterMembers) {
			parts := strings.Split(member, "=")
			if len(parts) != 2 {
				return fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
			}
			serveCmdConfig.ClusterMembers[util.HashString(parts[0], 0)] = parts[1]
		}
	}

	return serveCmdConfig.Validate()
}

// run starts the gridlock server and closes it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}
	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	// Close leaves the gossip cluster, the other nodes then release our locks
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		_ = serv.Close()
	}()

	return serv.Serve()
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(cmdUtil.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
