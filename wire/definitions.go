package wire

//go:generate stringer -type=IPProto -linecomment -output stringers.go .

// IPProto represents the IP protocol number carried in the IPv4 header's
// Protocol field. Only IPProtoTCP is meaningfully used by this module: every
// other value is dropped by netio's packet loop.
type IPProto uint8

// IP protocol numbers, RFC 790 / IANA registry (trimmed to the handful a
// TCP-over-TUN stack needs to recognise and reject).
const (
	IPProtoHopByHop IPProto = 0  // IPv6 Hop-by-Hop Option [RFC8200]
	IPProtoICMP     IPProto = 1  // Internet Control Message [RFC792]
	IPProtoIGMP     IPProto = 2  // Internet Group Management [RFC1112]
	IPProtoTCP      IPProto = 6  // Transmission Control [RFC793]
	IPProtoUDP      IPProto = 17 // User Datagram [RFC768]
	IPProtoIPv6     IPProto = 41 // IPv6 encapsulation [RFC2473]
	IPProtoGRE      IPProto = 47 // Generic Routing Encapsulation [RFC2784]
	IPProtoESP      IPProto = 50 // Encap Security Payload [RFC4303]
	IPProtoAH       IPProto = 51 // Authentication Header [RFC4302]
	IPProtoSCTP     IPProto = 132
)

func (p IPProto) String() string {
	switch p {
	case IPProtoHopByHop:
		return "HopByHop"
	case IPProtoICMP:
		return "ICMP"
	case IPProtoIGMP:
		return "IGMP"
	case IPProtoTCP:
		return "TCP"
	case IPProtoUDP:
		return "UDP"
	case IPProtoIPv6:
		return "IPv6"
	case IPProtoGRE:
		return "GRE"
	case IPProtoESP:
		return "ESP"
	case IPProtoAH:
		return "AH"
	case IPProtoSCTP:
		return "SCTP"
	default:
		return "IPProto(?)"
	}
}

// ToS represents the Traffic Class (a.k.a Type of Service). It is 8 bits
// long: 6 MSB are Differentiated Services, 2 LSB are Explicit Congestion
// Notification.
type ToS uint8

// DS returns the top 6 bits of the IPv4 ToS holding the Differentiated
// Services field which is used to classify packets.
func (tos ToS) DS() uint8 { return uint8(tos) >> 2 }

// ECN is the Explicit Congestion Notification field.
func (tos ToS) ECN() uint8 { return uint8(tos & 0b11) }

// IPv4Flags holds the fragmentation field data of an IPv4 header.
type IPv4Flags uint16

// DontFragment specifies whether the datagram can not be fragmented.
func (f IPv4Flags) DontFragment() bool { return f&0x4000 != 0 }

// MoreFragments is cleared for unfragmented packets.
func (f IPv4Flags) MoreFragments() bool { return f&0x2000 != 0 }

// FragmentOffset specifies the offset, in 8-byte units, of this fragment
// relative to the start of the original unfragmented datagram.
func (f IPv4Flags) FragmentOffset() uint16 { return uint16(f) & 0x1fff }
