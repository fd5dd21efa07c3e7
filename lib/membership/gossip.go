package membership

import (
	"bytes"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/memberlist"
)

// DefaultLeaveTimeout bounds how long Close waits for the leave message to spread
const DefaultLeaveTimeout = 5 * time.Second

// GossipConfig configures a GossipNotifier.
type GossipConfig struct {
	// NodeName must be unique in the cluster, the member id is derived from it
	NodeName string
	// BindAddr is the host:port the gossip protocol listens on. Port 0 picks a free port.
	BindAddr string
	// Seeds are gossip addresses of existing members. Empty starts a new cluster.
	Seeds []string
	// Profile selects the memberlist timing defaults: "lan" (default), "wan" or "local"
	Profile string
}

// GossipNotifier keeps a Cluster in sync with a memberlist gossip cluster.
// Nodes that leave or are declared dead are removed from the Cluster, which dispatches MemberLeft.
type GossipNotifier struct {
	list    *memberlist.Memberlist
	cluster *Cluster
	self    uint64
}

// NewGossipNotifier starts gossiping and joins the seeds.
// The local node is part of the cluster once this returns.
func NewGossipNotifier(cluster *Cluster, config GossipConfig) (*GossipNotifier, error) {
	mlConfig, err := memberlistConfig(config)
	if err != nil {
		return nil, err
	}
	mlConfig.Events = &eventDelegate{cluster: cluster}

	list, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, errors.Wrap(err, "create memberlist")
	}

	g := &GossipNotifier{
		list:    list,
		cluster: cluster,
		self:    MemberID(mlConfig.Name),
	}

	if len(config.Seeds) > 0 {
		n, err := list.Join(config.Seeds)
		if err != nil {
			_ = list.Shutdown()
			return nil, errors.Wrapf(err, "join gossip seeds %v", config.Seeds)
		}
		membershipLog.Infof("joined gossip cluster through %d of %d seeds", n, len(config.Seeds))
	}
	return g, nil
}

// Self returns the member id of this process
func (g *GossipNotifier) Self() uint64 {
	return g.self
}

// Addr returns the address other nodes use to join through this node
func (g *GossipNotifier) Addr() string {
	node := g.list.LocalNode()
	return net.JoinHostPort(node.Addr.String(), strconv.Itoa(int(node.Port)))
}

// Members returns the node names memberlist considers alive
func (g *GossipNotifier) Members() []string {
	nodes := g.list.Members()
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	return names
}

// Close announces the departure to the cluster and stops gossiping
func (g *GossipNotifier) Close() error {
	leaveErr := g.list.Leave(DefaultLeaveTimeout)
	return errors.CombineErrors(leaveErr, g.list.Shutdown())
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func memberlistConfig(config GossipConfig) (*memberlist.Config, error) {
	var mlConfig *memberlist.Config
	switch config.Profile {
	case "", "lan":
		mlConfig = memberlist.DefaultLANConfig()
	case "wan":
		mlConfig = memberlist.DefaultWANConfig()
	case "local":
		mlConfig = memberlist.DefaultLocalConfig()
	default:
		return nil, errors.Newf("unknown gossip profile %q", config.Profile)
	}

	if config.NodeName != "" {
		mlConfig.Name = config.NodeName
	}
	if config.BindAddr != "" {
		host, portStr, err := net.SplitHostPort(config.BindAddr)
		if err != nil {
			return nil, errors.Wrapf(err, "parse gossip address %q", config.BindAddr)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, errors.Wrapf(err, "parse gossip port %q", portStr)
		}
		mlConfig.BindAddr = host
		mlConfig.BindPort = port
		mlConfig.AdvertisePort = port
	}
	mlConfig.Logger = log.New(logWriter{}, "", 0)
	return mlConfig, nil
}

// eventDelegate forwards memberlist events to the cluster
type eventDelegate struct {
	cluster *Cluster
}

func (d *eventDelegate) NotifyJoin(node *memberlist.Node) {
	d.cluster.Join(MemberID(node.Name), node.Name)
}

func (d *eventDelegate) NotifyLeave(node *memberlist.Node) {
	d.cluster.Leave(MemberID(node.Name))
}

func (d *eventDelegate) NotifyUpdate(*memberlist.Node) {}

// logWriter routes memberlist output into the membership logger.
// memberlist prefixes its lines with "[LEVEL]".
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	line := string(bytes.TrimSpace(p))
	switch {
	case bytes.Contains(p, []byte("[ERR]")):
		membershipLog.Errorf("%s", line)
	case bytes.Contains(p, []byte("[WARN]")):
		membershipLog.Warningf("%s", line)
	default:
		membershipLog.Debugf("%s", line)
	}
	return len(p), nil
}
