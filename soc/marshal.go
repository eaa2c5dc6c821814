// Copyright 2020 Consensys Software Inc.
// Licensed under the Apache License, Version 2.0. See the LICENSE file for details.

package soc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/blang/semver/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/icza/bitio"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	socs "github.com/JBever/SOCs"
	"github.com/JBever/SOCs/internal/ioutils"
	"github.com/JBever/SOCs/logger"
)

var magic = [4]byte{'s', 'o', 'c', 's'}

const headerLen = 4 + 3*8
const digestLen = blake2b.Size256

// systemBody is the CBOR-encoded part of a serialized system; the node and
// weight tables are stored in separate binary sections.
type systemBody struct {
	SocsVersion string
	CipherID    string
	Params      []uint64
	Mode        Mode
	Width       int
	Threshold   int
	Approximate bool
	Vars        []VarInfo
	Connections []Connection
	ShardIDs    []uint32
	ShardApprox []bool
}

// ToBytes serializes the system: a fixed header, three independently encoded
// sections (CBOR body, compressed node tables, weight tables) and a blake2b
// digest of everything before it.
func (sys *System) ToBytes() ([]byte, error) {
	var body, nodes, weights []byte
	var g errgroup.Group
	g.Go(func() error {
		var err error
		body, err = sys.bodyToBytes()
		return err
	})
	g.Go(func() error {
		var err error
		nodes, err = sys.nodesToBytes()
		return err
	})
	g.Go(func() error {
		var err error
		weights, err = sys.weightsToBytes()
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, headerLen+len(body)+len(nodes)+len(weights)+digestLen)
	buf = append(buf, magic[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(body)))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(nodes)))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(weights)))
	buf = append(buf, body...)
	buf = append(buf, nodes...)
	buf = append(buf, weights...)

	digest := blake2b.Sum256(buf)
	buf = append(buf, digest[:]...)
	return buf, nil
}

// FromBytes deserializes a system. Hash-consing is re-established on every
// shard, so later merges and searches behave exactly as on the original.
func (sys *System) FromBytes(data []byte) (int, error) {
	if len(data) < headerLen+digestLen {
		return 0, fmt.Errorf("%w: truncated data", ErrIncompatibleFormat)
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return 0, fmt.Errorf("%w: bad magic", ErrIncompatibleFormat)
	}
	bodyLen := binary.LittleEndian.Uint64(data[4:12])
	nodesLen := binary.LittleEndian.Uint64(data[12:20])
	weightsLen := binary.LittleEndian.Uint64(data[20:28])
	// compare in uint64 so corrupt lengths cannot overflow the total
	payload := uint64(len(data)) - headerLen - digestLen
	if bodyLen > payload || nodesLen > payload-bodyLen || weightsLen > payload-bodyLen-nodesLen {
		return 0, fmt.Errorf("%w: truncated data", ErrIncompatibleFormat)
	}
	total := headerLen + int(bodyLen+nodesLen+weightsLen) + digestLen

	digest := blake2b.Sum256(data[:total-digestLen])
	if !bytes.Equal(digest[:], data[total-digestLen:total]) {
		return 0, errors.New("serialized system digest mismatch")
	}

	bodyStart := headerLen
	nodesStart := bodyStart + int(bodyLen)
	weightsStart := nodesStart + int(nodesLen)

	var body systemBody
	var g errgroup.Group
	g.Go(func() error {
		dm, err := cbor.DecOptions{
			MaxArrayElements: 2147483647,
			MaxMapPairs:      2147483647,
		}.DecMode()
		if err != nil {
			return err
		}
		return dm.Unmarshal(data[bodyStart:nodesStart], &body)
	})
	g.Go(func() error {
		return sys.nodesFromBytes(data[nodesStart:weightsStart])
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := checkVersion(body.SocsVersion); err != nil {
		return 0, err
	}
	sys.SocsVersion = body.SocsVersion
	sys.CipherID = body.CipherID
	sys.Params = body.Params
	sys.Mode = body.Mode
	sys.Width = body.Width
	sys.Threshold = body.Threshold
	sys.Approximate = body.Approximate
	sys.Vars = body.Vars
	sys.Connections = body.Connections
	if len(body.ShardIDs) != len(sys.shards) || len(body.ShardApprox) != len(sys.shards) {
		return 0, errors.New("serialized system sections disagree on shard count")
	}
	for i, s := range sys.shards {
		s.id = body.ShardIDs[i]
		s.approx = body.ShardApprox[i]
	}

	// weights depend on the node tables, decode them last
	if err := sys.weightsFromBytes(data[weightsStart : total-digestLen]); err != nil {
		return 0, err
	}

	// re-establish canonical form (idempotent on intact data)
	for i, s := range sys.shards {
		if !s.reduce() {
			return 0, fmt.Errorf("serialized shard %d is unsatisfiable", i)
		}
	}
	return total, nil
}

// checkVersion rejects major-version mismatches and logs minor ones.
func checkVersion(v string) error {
	objectVersion, err := semver.Parse(v)
	if err != nil {
		return fmt.Errorf("when parsing serialized socs version: %w", err)
	}
	if objectVersion.Major != socs.Version.Major {
		return fmt.Errorf("%w: serialized with socs %s, this is %s", ErrIncompatibleFormat, objectVersion, socs.Version)
	}
	if socs.Version.Compare(objectVersion) != 0 {
		log := logger.Logger()
		log.Warn().Str("binary", socs.Version.String()).Str("object", objectVersion.String()).Msg("socs version mismatch with serialized system. there are no guarantees on compatibility")
	}
	return nil
}

func (sys *System) bodyToBytes() ([]byte, error) {
	body := systemBody{
		SocsVersion: sys.SocsVersion,
		CipherID:    sys.CipherID,
		Params:      sys.Params,
		Mode:        sys.Mode,
		Width:       sys.Width,
		Threshold:   sys.Threshold,
		Approximate: sys.Approximate,
		Vars:        sys.Vars,
		Connections: sys.Connections,
	}
	for _, s := range sys.shards {
		body.ShardIDs = append(body.ShardIDs, s.id)
		body.ShardApprox = append(body.ShardApprox, s.approx)
	}
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	return em.Marshal(&body)
}

// nodesToBytes packs every shard's level and edge tables. Per shard, four
// compressed uint32 streams: the layout (level count, nodes per level, lhs
// length per level), the flattened lhs variables, and the 0- and 1-edge
// targets in level-major node order (0 encodes an absent edge).
func (sys *System) nodesToBytes() ([]byte, error) {
	var buf bytes.Buffer
	var scratch []uint32
	var err error
	binary.Write(&buf, binary.LittleEndian, uint64(len(sys.shards)))
	for _, s := range sys.shards {
		layout := make([]uint32, 0, 1+2*len(s.levels))
		layout = append(layout, uint32(len(s.levels)))
		var lhsFlat []uint32
		var e0s, e1s []uint32
		for i := range s.levels {
			layout = append(layout, uint32(len(s.levels[i].nodes)))
			layout = append(layout, uint32(len(s.levels[i].lhs)))
			lhsFlat = append(lhsFlat, s.levels[i].lhs...)
			for _, id := range s.levels[i].nodes {
				e0s = append(e0s, uint32(s.nodes[id].e0))
				e1s = append(e1s, uint32(s.nodes[id].e1))
			}
		}
		for _, stream := range [][]uint32{layout, lhsFlat, e0s, e1s} {
			if scratch, err = ioutils.CompressAndWriteUints32(&buf, stream, scratch); err != nil {
				return nil, err
			}
		}
	}
	return buf.Bytes(), nil
}

func (sys *System) nodesFromBytes(in []byte) error {
	if len(in) < 8 {
		return errors.New("invalid node section")
	}
	nbShards := binary.LittleEndian.Uint64(in[:8])
	in = in[8:]
	// every shard contributes at least its four stream headers
	if nbShards > uint64(len(in)) {
		return errors.New("invalid node section")
	}

	var scratch []uint32
	var n int
	var err error
	readStream := func() ([]uint32, error) {
		var out []uint32
		scratch, n, out, err = ioutils.ReadAndDecompressUints32(in, scratch)
		if err != nil {
			return nil, err
		}
		in = in[n:]
		return out, nil
	}

	sys.shards = make([]*Shard, 0, nbShards)
	for si := uint64(0); si < nbShards; si++ {
		layout, err := readStream()
		if err != nil {
			return err
		}
		lhsFlat, err := readStream()
		if err != nil {
			return err
		}
		e0s, err := readStream()
		if err != nil {
			return err
		}
		e1s, err := readStream()
		if err != nil {
			return err
		}

		if len(layout) < 1 {
			return errors.New("invalid shard layout")
		}
		nbLevels := int(layout[0])
		if len(layout) != 1+2*nbLevels {
			return errors.New("invalid shard layout")
		}

		s := &Shard{
			levels: make([]level, nbLevels),
			nodes:  make([]node, 1, 1+len(e0s)),
		}
		nodeCursor := NodeID(1)
		lhsCursor := 0
		edgeCursor := 0
		for i := 0; i < nbLevels; i++ {
			nbNodes := int(layout[1+2*i])
			lhsLen := int(layout[2+2*i])
			if lhsCursor+lhsLen > len(lhsFlat) || edgeCursor+nbNodes > len(e0s) || len(e0s) != len(e1s) {
				return errors.New("invalid shard node tables")
			}
			s.levels[i].lhs = lhsFlat[lhsCursor : lhsCursor+lhsLen : lhsCursor+lhsLen]
			lhsCursor += lhsLen
			for j := 0; j < nbNodes; j++ {
				s.levels[i].nodes = append(s.levels[i].nodes, nodeCursor)
				s.nodes = append(s.nodes, node{
					e0:    NodeID(e0s[edgeCursor]),
					e1:    NodeID(e1s[edgeCursor]),
					level: uint32(i),
				})
				nodeCursor++
				edgeCursor++
			}
		}
		nbNodes := len(s.nodes)
		for _, nd := range s.nodes[1:] {
			if int(nd.e0) >= nbNodes || int(nd.e1) >= nbNodes {
				return errors.New("invalid shard edge target")
			}
		}
		// reduce assumes a single root, a single sink and at least one
		// constrained level
		if nbLevels < 2 || len(s.levels[0].nodes) != 1 ||
			len(s.levels[nbLevels-1].nodes) != 1 || len(s.levels[nbLevels-1].lhs) != 0 {
			return errors.New("invalid shard shape")
		}
		sys.shards = append(sys.shards, s)
	}
	return nil
}

// weightsToBytes stores, per shard, a bit stream of two presence bits per
// node followed by the non-zero weights as raw float64 bits.
func (sys *System) weightsToBytes() ([]byte, error) {
	var buf bytes.Buffer
	w := bitio.NewWriter(&buf)
	for _, s := range sys.shards {
		var values []float64
		for i := range s.levels {
			for _, id := range s.levels[i].nodes {
				nd := &s.nodes[id]
				w.TryWriteBool(nd.w0 != 0)
				w.TryWriteBool(nd.w1 != 0)
				if nd.w0 != 0 {
					values = append(values, nd.w0)
				}
				if nd.w1 != 0 {
					values = append(values, nd.w1)
				}
			}
		}
		for _, v := range values {
			w.TryWriteBits(math.Float64bits(v), 64)
		}
		if _, err := w.Align(); err != nil {
			return nil, err
		}
	}
	if w.TryError != nil {
		return nil, w.TryError
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (sys *System) weightsFromBytes(in []byte) error {
	r := bitio.NewReader(bytes.NewReader(in))
	for _, s := range sys.shards {
		type slot struct {
			id  NodeID
			bit uint8
		}
		var present []slot
		for i := range s.levels {
			for _, id := range s.levels[i].nodes {
				if r.TryReadBool() {
					present = append(present, slot{id, 0})
				}
				if r.TryReadBool() {
					present = append(present, slot{id, 1})
				}
			}
		}
		for _, p := range present {
			v := math.Float64frombits(r.TryReadBits(64))
			if p.bit == 0 {
				s.nodes[p.id].w0 = v
			} else {
				s.nodes[p.id].w1 = v
			}
		}
		r.Align()
		if r.TryError != nil {
			return fmt.Errorf("invalid weight section: %w", r.TryError)
		}
	}
	return nil
}

// WriteTo serializes the system to w. It implements io.WriterTo.
func (sys *System) WriteTo(w io.Writer) (int64, error) {
	data, err := sys.ToBytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// ReadFrom deserializes a system from r. It implements io.ReaderFrom.
func (sys *System) ReadFrom(r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return int64(len(data)), err
	}
	n, err := sys.FromBytes(data)
	return int64(n), err
}

// Store writes the system to path atomically: the data goes to a temporary
// file first, renamed into place only on success, so a failed write leaves no
// partial file behind.
func Store(path string, sys *System) error {
	data, err := sys.ToBytes()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads a system stored by Store.
func Load(path string) (*System, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sys := new(System)
	if _, err := sys.FromBytes(data); err != nil {
		return nil, err
	}
	return sys, nil
}
