package handler

import (
	"encoding/xml"
	"strings"
)

// ProviderTwilio is the phone provider that expects TwiML alongside JSON.
const ProviderTwilio = "twilio"

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// BuildTwiML renders a messaging response that sends text back to the caller.
func BuildTwiML(text string) (string, error) {
	body, err := xml.Marshal(twimlResponse{Message: text})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(xml.Header)
	b.Write(body)
	return b.String(), nil
}
