package kernclassify

import (
	"fmt"
	"net"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/rlimit"
	"github.com/sirupsen/logrus"
)

// Attachment is a loaded-and-attached XDP program, plus the xsk_map file
// descriptor the AF_XDP transport needs to register its socket into.
type Attachment struct {
	coll   *ebpf.Collection
	link   link.Link
	xskMap *ebpf.Map
	iface  *net.Interface
	log    *logrus.Logger
}

// Load opens the compiled XDP object at objPath, attaches its
// "xdp_firewall" program to ifaceName, and returns the attachment. It
// loads and attaches the program only; it does not interpret packets
// itself.
func Load(objPath, ifaceName string, log *logrus.Logger) (*Attachment, error) {
	if err := rlimit.RemoveMemlock(); err != nil {
		log.WithError(err).Warn("failed to remove memlock rlimit")
	}

	spec, err := ebpf.LoadCollectionSpec(objPath)
	if err != nil {
		return nil, fmt.Errorf("kernclassify: load object %s: %w", objPath, err)
	}

	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("kernclassify: create collection: %w", err)
	}

	prog, ok := coll.Programs["xdp_firewall"]
	if !ok {
		coll.Close()
		return nil, fmt.Errorf("kernclassify: program xdp_firewall not found in %s", objPath)
	}

	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		coll.Close()
		return nil, fmt.Errorf("kernclassify: resolve interface %s: %w", ifaceName, err)
	}

	l, err := link.AttachXDP(link.XDPOptions{
		Program:   prog,
		Interface: iface.Index,
		Flags:     link.XDPGenericMode,
	})
	if err != nil {
		coll.Close()
		return nil, fmt.Errorf("kernclassify: attach xdp to %s: %w", ifaceName, err)
	}

	xskMap, ok := coll.Maps["xsk_map"]
	if !ok {
		l.Close()
		coll.Close()
		return nil, fmt.Errorf("kernclassify: xsk_map not found in %s", objPath)
	}

	log.WithFields(logrus.Fields{"iface": ifaceName, "prog": objPath}).Info("xdp program attached")

	return &Attachment{coll: coll, link: l, xskMap: xskMap, iface: iface, log: log}, nil
}

// IfaceIndex returns the kernel interface index this attachment is bound
// to, for the caller to open the matching AF_XDP socket against.
func (a *Attachment) IfaceIndex() int {
	return a.iface.Index
}

// RegisterSocket binds an AF_XDP socket fd into xsk_map at queueID, so the
// kernel program's bpf_redirect_map call reaches it.
func (a *Attachment) RegisterSocket(queueID uint32, sockFD int) error {
	key := queueID
	val := uint32(sockFD)
	if err := a.xskMap.Update(&key, &val, ebpf.UpdateAny); err != nil {
		return fmt.Errorf("kernclassify: update xsk_map[%d]: %w", queueID, err)
	}
	return nil
}

// Close detaches the program and releases all resources. Idempotent and
// safe to call exactly once on every exit path.
func (a *Attachment) Close() error {
	var err error
	if a.link != nil {
		err = a.link.Close()
		a.link = nil
	}
	if a.coll != nil {
		a.coll.Close()
		a.coll = nil
	}
	if a.log != nil {
		a.log.Info("xdp program detached")
	}
	return err
}
