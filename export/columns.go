package export

import "strings"

// abbreviations are expanded in this order; later entries see the output of earlier ones.
var abbreviations = []struct{ short, long string }{
	{"Addr", "Address"},
	{"Ref", "Reference"},
	{"Desc", "Description"},
	{"Amt", "Amount"},
	{"Acct", "Account"},
	{"Curr", "Currency"},
	{"Pmt", "Payment"},
	{"Inv", "Invoice"},
	{"Emp", "Employee"},
	{"Cust", "Customer"},
	{"Tel", "Telephone"},
	{"Txn", "Transaction"},
	{"Num", "Number"},
}

// FormatColumnName makes an API field name readable: known abbreviations are
// expanded (only when not followed by a lowercase letter, so Address stays
// Address), an underscore goes before every capital not already preceded by
// one, and a leading underscore is dropped.
//
//	BillAddr_City        -> Bill_Address_City
//	Meta_Data_CreateTime -> Meta_Data_Create_Time
func FormatColumnName(key string) string {
	s := key
	for _, a := range abbreviations {
		s = expandAbbreviation(s, a.short, a.long)
	}
	return strings.TrimPrefix(splitCapitals(s), "_")
}

func expandAbbreviation(s, short, long string) string {
	if !strings.Contains(s, short) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		if strings.HasPrefix(s[i:], short) {
			next := i + len(short)
			if next >= len(s) || !isLower(s[next]) {
				b.WriteString(long)
				i = next
				continue
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

func splitCapitals(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUpper(c) && (i == 0 || s[i-1] != '_') {
			b.WriteByte('_')
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }
