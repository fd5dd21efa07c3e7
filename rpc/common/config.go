package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the server util)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to the Dragonboat Config of one partition shard
func (c *ServerConfig) ToDragonboatConfig(shardId uint64) config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            shardId,
		ElectionRTT:        electionRTTFactor,  // = c.RTTMillisecond * 10
		HeartbeatRTT:       heartbeatRTTFactor, // = c.RTTMillisecond * 1
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Transport configuration struct
// --------------------------------------------------------------------------

// TransportConfig configures the socket based transports (tcp and grpc).
// The http transport only uses the endpoint.
type TransportConfig struct {
	// Endpoint is the listen address (server) or a dial address (client)
	Endpoint string

	// TCP settings
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int

	// Buffer sizes
	WriteBufferSize int
	ReadBufferSize  int

	// Frame size limit, 0 means DefaultMaxFrameSize
	MaxFrameSize int
}

// DefaultMaxFrameSize is the largest frame a transport accepts by default
const DefaultMaxFrameSize = 4 << 20

// FrameLimit returns the configured frame size limit or the default
func (c *TransportConfig) FrameLimit() int {
	if c.MaxFrameSize <= 0 {
		return DefaultMaxFrameSize
	}
	return c.MaxFrameSize
}

// DefaultTransportConfig returns the settings used when nothing is configured
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		TCPNoDelay:      true,
		TCPKeepAliveSec: 30,
		TCPLingerSec:    0,
		WriteBufferSize: 512 * 1024,
		ReadBufferSize:  512 * 1024,
		MaxFrameSize:    DefaultMaxFrameSize,
	}
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// StoreType selects the store implementation of the server
type StoreType string

const (
	StoreTypeLocal       StoreType = "lstore"
	StoreTypeDistributed StoreType = "dstore"
)

// ServerConfig holds all configuration parameters of a gridlock server.
type ServerConfig struct {
	// Store selection
	StoreType      StoreType
	PartitionCount uint64
	BaseShardID    uint64

	// Dragonboat parameters (dstore only)
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string

	// remote store parameters
	TimeoutSecond int64

	// Membership (gossip)
	NodeName    string
	GossipBind  string
	GossipSeeds []string

	// Cleanup coordinator
	CleanupDebounce time.Duration
	SweepRate       float64
	SweepTimeout    time.Duration

	// RPC api settings
	Transport TransportConfig

	// Logging configuration
	LogLevel string
}

// IsDistributed returns true if the server replicates its lock state with raft
func (c *ServerConfig) IsDistributed() bool {
	return c.StoreType == StoreTypeDistributed
}

// HasGossip returns true if the server takes part in the gossip membership
func (c *ServerConfig) HasGossip() bool {
	return c.GossipBind != ""
}

// Validate checks the configuration for values the server can not start with
func (c *ServerConfig) Validate() error {
	if c.PartitionCount == 0 {
		return fmt.Errorf("partition count must be greater than 0")
	}
	switch c.StoreType {
	case StoreTypeLocal:
	case StoreTypeDistributed:
		if c.ReplicaID == 0 {
			return fmt.Errorf("replica id must be set for store type %s", c.StoreType)
		}
		if _, ok := c.ClusterMembers[c.ReplicaID]; !ok {
			return fmt.Errorf("replica id %d is not part of the cluster members", c.ReplicaID)
		}
	default:
		return fmt.Errorf("unknown store type %q, must be one of %s, %s", c.StoreType, StoreTypeLocal, StoreTypeDistributed)
	}
	if c.Transport.Endpoint == "" {
		return fmt.Errorf("endpoint must be set")
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Store
	addSection("Store")
	addField("Type", string(c.StoreType))
	addField("Partitions", strconv.FormatUint(c.PartitionCount, 10))

	// Cleanup
	addSection("Cleanup")
	addField("Debounce", c.CleanupDebounce.String())
	addField("Sweep Rate", fmt.Sprintf("%.2f/s", c.SweepRate))
	addField("Sweep Timeout", c.SweepTimeout.String())

	if c.HasGossip() {
		addSection("Membership")
		addField("Node Name", c.NodeName)
		addField("Gossip Bind", c.GossipBind)
		addField("Gossip Seeds", strings.Join(c.GossipSeeds, ", "))
	}

	if c.IsDistributed() {
		// Node Identity
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))
		addField("Shards", fmt.Sprintf("%d-%d", c.BaseShardID, c.BaseShardID+c.PartitionCount-1))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))

		// Storage
		addSection("Storage")
		addField("Data Directory", c.DataDir)

		addSection("Cluster")
		sb.WriteString("  Initial Cluster Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints              []string
	TimeoutSecond          int
	RetryCount             int
	ConnectionsPerEndpoint int
	Transport              TransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(max(1, c.ConnectionsPerEndpoint)))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
