package datasource

import (
	"encoding/binary"
	"math"
	"math/rand"
	"net/netip"

	"github.com/GuangYu-yu/CloudflareST-Go/pkg/model"
)

// 枚举采样的网段规模上限：主机位不超过 16 位时全量枚举后洗牌
const enumHostBits = 16

// 采样数量表的锚点与数值，v4 锚定在 /24，v6 锚定在 /120
var sampleTable = [9]uint32{200, 96, 64, 32, 16, 8, 4, 2, 1}

const (
	sampleAnchorV4 = 24
	sampleAnchorV6 = 120
	sampleCountCap = 1 << 16
)

// DefaultSampleCount 计算网段的默认采样数量
// 锚点内使用固定表，锚点外使用指数插值 round(a·exp(−k·prefix))，
// k = ln2 使数量随主机位每多一位翻倍，并与固定表在锚点处连续
func DefaultSampleCount(prefixLen int, is4 bool) uint32 {
	anchor := sampleAnchorV6
	if is4 {
		anchor = sampleAnchorV4
	}
	if prefixLen >= anchor {
		idx := prefixLen - anchor
		if idx >= len(sampleTable) {
			return 1
		}
		return sampleTable[idx]
	}
	// a = 200·2^anchor, k = ln2
	a := 200.0 * math.Exp2(float64(anchor))
	count := math.Round(a * math.Exp(-math.Ln2*float64(prefixLen)))
	if count > sampleCountCap {
		return sampleCountCap
	}
	return uint32(count)
}

// stream 是网段内按需产出端点的惰性序列
type stream interface {
	next() (model.Endpoint, bool)
	// size 返回预期产出数量，仅用于进度展示
	size() int
}

// newStream 根据网段规模选择采样方式
// 小网段枚举全部主机地址后洗牌，大网段做无拒绝的均匀随机抽取；
// all4 模式下 IPv4 网段逐个产出全部主机地址
func newStream(spec model.CidrSpec, port uint16, all4 bool, rng *rand.Rand) stream {
	prefix := spec.Prefix
	hostBits := prefix.Addr().BitLen() - prefix.Bits()

	if all4 && prefix.Addr().Is4() {
		return newSeqStream(prefix, port)
	}

	count := spec.SampleCount
	if count == 0 {
		count = DefaultSampleCount(prefix.Bits(), prefix.Addr().Is4())
	}

	if hostBits <= enumHostBits {
		return newShuffleStream(prefix, port, count, rng)
	}
	return &drawStream{prefix: prefix, port: port, remaining: int(count), count: int(count), rng: rng}
}

// excludeEdges 判断是否跳过网络地址和广播地址（仅 IPv4 且前缀不超过 /30）
func excludeEdges(prefix netip.Prefix) bool {
	return prefix.Addr().Is4() && prefix.Bits() <= 30
}

// addrAtOffset 返回网络基址加偏移量得到的地址
func addrAtOffset(prefix netip.Prefix, offset uint64) netip.Addr {
	if prefix.Addr().Is4() {
		base := binary.BigEndian.Uint32(prefix.Addr().AsSlice())
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], base+uint32(offset))
		return netip.AddrFrom4(b)
	}
	b := prefix.Addr().As16()
	hi := binary.BigEndian.Uint64(b[:8])
	lo := binary.BigEndian.Uint64(b[8:])
	sum := lo + offset
	if sum < lo {
		hi++
	}
	binary.BigEndian.PutUint64(b[:8], hi)
	binary.BigEndian.PutUint64(b[8:], sum)
	return netip.AddrFrom16(b)
}

// shuffleStream 枚举网段内全部主机地址并均匀洗牌，产出前 min(N, P) 个
type shuffleStream struct {
	addrs []netip.Addr
	port  uint16
	pos   int
}

func newShuffleStream(prefix netip.Prefix, port uint16, count uint32, rng *rand.Rand) *shuffleStream {
	hostBits := prefix.Addr().BitLen() - prefix.Bits()
	pool := uint64(1) << uint(hostBits)

	start := uint64(0)
	if excludeEdges(prefix) && pool > 2 {
		start = 1
		pool -= 2
	}

	addrs := make([]netip.Addr, 0, pool)
	for off := uint64(0); off < pool; off++ {
		addrs = append(addrs, addrAtOffset(prefix, start+off))
	}
	rng.Shuffle(len(addrs), func(i, j int) {
		addrs[i], addrs[j] = addrs[j], addrs[i]
	})
	if uint64(count) < uint64(len(addrs)) {
		addrs = addrs[:count]
	}
	return &shuffleStream{addrs: addrs, port: port}
}

func (s *shuffleStream) next() (model.Endpoint, bool) {
	if s.pos >= len(s.addrs) {
		return model.Endpoint{}, false
	}
	ep := model.Endpoint{Addr: s.addrs[s.pos], Port: s.port}
	s.pos++
	return ep, true
}

func (s *shuffleStream) size() int { return len(s.addrs) }

// drawStream 在网段内做均匀随机抽取，不去重
type drawStream struct {
	prefix    netip.Prefix
	port      uint16
	remaining int
	count     int
	rng       *rand.Rand
}

func (s *drawStream) next() (model.Endpoint, bool) {
	if s.remaining <= 0 {
		return model.Endpoint{}, false
	}
	s.remaining--
	return model.Endpoint{Addr: s.randomAddr(), Port: s.port}, true
}

func (s *drawStream) size() int { return s.count }

// randomAddr 将主机位替换为随机比特，网络位保持不变
func (s *drawStream) randomAddr() netip.Addr {
	hostBits := s.prefix.Addr().BitLen() - s.prefix.Bits()
	if s.prefix.Addr().Is4() {
		base := binary.BigEndian.Uint32(s.prefix.Addr().AsSlice())
		mask := uint32(1)<<uint(hostBits) - 1
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], base|(s.rng.Uint32()&mask))
		return netip.AddrFrom4(b)
	}
	b := s.prefix.Addr().As16()
	hi := binary.BigEndian.Uint64(b[:8])
	lo := binary.BigEndian.Uint64(b[8:])
	if hostBits >= 64 {
		lo |= s.rng.Uint64()
		extra := uint(hostBits - 64)
		if extra > 0 {
			hi |= s.rng.Uint64() & (uint64(1)<<extra - 1)
		}
	} else {
		lo |= s.rng.Uint64() & (uint64(1)<<uint(hostBits) - 1)
	}
	binary.BigEndian.PutUint64(b[:8], hi)
	binary.BigEndian.PutUint64(b[8:], lo)
	return netip.AddrFrom16(b)
}

// seqStream 顺序产出网段内的全部主机地址（-all4 全量模式）
type seqStream struct {
	prefix netip.Prefix
	port   uint16
	offset uint64
	limit  uint64
}

func newSeqStream(prefix netip.Prefix, port uint16) *seqStream {
	hostBits := prefix.Addr().BitLen() - prefix.Bits()
	pool := uint64(1) << uint(hostBits)
	start := uint64(0)
	if excludeEdges(prefix) && pool > 2 {
		start = 1
		pool -= 2
	}
	return &seqStream{prefix: prefix, port: port, offset: start, limit: start + pool}
}

func (s *seqStream) next() (model.Endpoint, bool) {
	if s.offset >= s.limit {
		return model.Endpoint{}, false
	}
	ep := model.Endpoint{Addr: addrAtOffset(s.prefix, s.offset), Port: s.port}
	s.offset++
	return ep, true
}

func (s *seqStream) size() int { return int(s.limit - s.offset) }
