package wasmir

// RelocKind enumerates the architecture relocation kinds the IR can
// express — a one-to-one mirror of Cranelift's Reloc enum in the original
// implementation. Only Abs8 and X86CallPCRel4 are honored by the instance
// materializer (spec §4.4); every other kind is accepted by the IR (a
// compiler may emit it) but rejected at instantiation time.
type RelocKind byte

const (
	RelocAbs4 RelocKind = iota
	RelocAbs8
	RelocX86PCRel4
	RelocX86CallPCRel4
	RelocX86CallPLTRel4
	RelocX86GOTPCRel4
	RelocArm32Call
	RelocArm64Call
	RelocS390xPCRel32Dbl
	RelocElfX86_64TlsGd
	RelocMachOX86_64Tlv
	RelocAarch64TlsGdAdrPage21
	RelocAarch64TlsGdAddLo12Nc
)

// Width returns the byte width a relocation of kind k patches, for the
// kinds the materializer supports. Used by the §8 property check
// `offset + width(kind) <= len(code)`.
func (k RelocKind) Width() uint32 {
	switch k {
	case RelocAbs8:
		return 8
	case RelocAbs4, RelocX86PCRel4, RelocX86CallPCRel4, RelocX86CallPLTRel4, RelocX86GOTPCRel4:
		return 4
	default:
		return 4
	}
}

func (k RelocKind) String() string {
	switch k {
	case RelocAbs4:
		return "Abs4"
	case RelocAbs8:
		return "Abs8"
	case RelocX86PCRel4:
		return "X86PCRel4"
	case RelocX86CallPCRel4:
		return "X86CallPCRel4"
	case RelocX86CallPLTRel4:
		return "X86CallPLTRel4"
	case RelocX86GOTPCRel4:
		return "X86GOTPCRel4"
	case RelocArm32Call:
		return "Arm32Call"
	case RelocArm64Call:
		return "Arm64Call"
	case RelocS390xPCRel32Dbl:
		return "S390xPCRel32Dbl"
	case RelocElfX86_64TlsGd:
		return "ElfX86_64TlsGd"
	case RelocMachOX86_64Tlv:
		return "MachOX86_64Tlv"
	case RelocAarch64TlsGdAdrPage21:
		return "Aarch64TlsGdAdrPage21"
	case RelocAarch64TlsGdAddLo12Nc:
		return "Aarch64TlsGdAddLo12Nc"
	}
	return "unknown"
}

// Addend is the value added to the symbol value before a relocation is
// written.
type Addend = int64

// Reloc is a single patch-site record: at instantiation, the byte range
// [Offset, Offset+Kind.Width()) of the code blob is rewritten to a
// pointer-derived value computed from Target and Addend.
type Reloc struct {
	Offset uint32
	Kind   RelocKind
	Target ItemRef
	Addend Addend
}
