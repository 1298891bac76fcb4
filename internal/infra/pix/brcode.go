package pix

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Merchant identifies the receiver embedded in a static BR Code.
type Merchant struct {
	Name   string
	City   string
	PixKey string
}

// BuildBRCode renders an EMV "copia e cola" payload for a PIX charge.
func BuildBRCode(m Merchant, amount decimal.Decimal, txid string) string {
	account := emvField("00", "br.gov.bcb.pix") + emvField("01", m.PixKey)

	var b strings.Builder
	b.WriteString(emvField("00", "01"))
	b.WriteString(emvField("26", account))
	b.WriteString(emvField("52", "0000"))
	b.WriteString(emvField("53", "986"))
	if amount.IsPositive() {
		b.WriteString(emvField("54", amount.StringFixed(2)))
	}
	b.WriteString(emvField("58", "BR"))
	b.WriteString(emvField("59", emvText(m.Name, 25, "RECEBEDOR")))
	b.WriteString(emvField("60", emvText(m.City, 15, "BRASIL")))
	b.WriteString(emvField("62", emvField("05", emvTxID(txid))))
	b.WriteString("6304")

	payload := b.String()
	return payload + fmt.Sprintf("%04X", crc16CCITT([]byte(payload)))
}

func emvField(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

func emvText(value string, max int, fallback string) string {
	value = strings.ToUpper(strings.TrimSpace(asciiOnly(value)))
	if value == "" {
		value = fallback
	}
	if len(value) > max {
		value = value[:max]
	}
	return value
}

// emvTxID keeps the 25 alphanumeric characters the reference field allows.
func emvTxID(txid string) string {
	var b strings.Builder
	for _, r := range txid {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
		if b.Len() == 25 {
			break
		}
	}
	if b.Len() == 0 {
		return "***"
	}
	return b.String()
}

func asciiOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// crc16CCITT is CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF), the EMV QR checksum.
func crc16CCITT(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
