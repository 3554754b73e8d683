package tdf

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Dump renders a value tree as indented text for debug logs.
func Dump(v Value) string {
	var sb strings.Builder
	dump(&sb, v, 0)
	return sb.String()
}

// DumpPayload renders a packet body.
func DumpPayload(s *Struct) string {
	if s == nil || len(s.Fields) == 0 {
		return "{}"
	}
	return Dump(s)
}

func dump(sb *strings.Builder, v Value, indent int) {
	pad := strings.Repeat("  ", indent)
	switch val := v.(type) {
	case nil:
		sb.WriteString("<nil>")
	case Integer:
		if val.Negative {
			fmt.Fprintf(sb, "-%d", val.Magnitude)
		} else {
			fmt.Fprintf(sb, "%d", val.Magnitude)
		}
	case Float32:
		fmt.Fprintf(sb, "%g", float32(val))
	case Float64:
		fmt.Fprintf(sb, "%g", float64(val))
	case String:
		fmt.Fprintf(sb, "%q", string(val))
	case Blob:
		if len(val) > 32 {
			fmt.Fprintf(sb, "blob(%d) %s...", len(val), hex.EncodeToString(val[:32]))
		} else {
			fmt.Fprintf(sb, "blob(%d) %s", len(val), hex.EncodeToString(val))
		}
	case *Struct:
		if len(val.Fields) == 0 {
			sb.WriteString("{}")
			return
		}
		sb.WriteString("{\n")
		for _, f := range val.Fields {
			fmt.Fprintf(sb, "%s  %s = ", pad, f.Label)
			dump(sb, f.Value, indent+1)
			sb.WriteString("\n")
		}
		sb.WriteString(pad + "}")
	case *List:
		fmt.Fprintf(sb, "list<%s>[", val.Elem)
		for i, item := range val.Items {
			if i > 0 {
				sb.WriteString(", ")
			}
			dump(sb, item, indent)
		}
		sb.WriteString("]")
	case *Map:
		fmt.Fprintf(sb, "map<%s,%s>{", val.Key, val.Elem)
		for i, e := range val.Entries {
			if i > 0 {
				sb.WriteString(", ")
			}
			dump(sb, e.Key, indent)
			sb.WriteString(": ")
			dump(sb, e.Value, indent)
		}
		sb.WriteString("}")
	case Union:
		if !val.IsSet() {
			sb.WriteString("union(unset)")
			return
		}
		fmt.Fprintf(sb, "union(%d) %s = ", val.Key, val.Label)
		dump(sb, val.Value, indent)
	case VarIntList:
		sb.WriteString("varints[")
		for i, n := range val {
			if i > 0 {
				sb.WriteString(", ")
			}
			dump(sb, n, indent)
		}
		sb.WriteString("]")
	case Pair:
		sb.WriteString("(")
		dump(sb, val[0], indent)
		sb.WriteString(", ")
		dump(sb, val[1], indent)
		sb.WriteString(")")
	case Triple:
		sb.WriteString("(")
		dump(sb, val[0], indent)
		sb.WriteString(", ")
		dump(sb, val[1], indent)
		sb.WriteString(", ")
		dump(sb, val[2], indent)
		sb.WriteString(")")
	default:
		fmt.Fprintf(sb, "%T", v)
	}
}
