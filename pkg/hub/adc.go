package hub

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dcwire/aircore/pkg/tth"
)

// ADCAdaptor implements ProtocolAdaptor for the line-oriented, space-
// delimited ADC hub protocol. Each outgoing line is CMD plus escaped
// space-separated parameters; incoming lines are split the same way.
type ADCAdaptor struct {
	ownSID string
}

// NewADCAdaptor returns an adaptor for a hub session identified by the
// 4-character session ID the hub assigns us in its first SID command.
func NewADCAdaptor() *ADCAdaptor {
	return &ADCAdaptor{}
}

// SetOwnSID records the session ID the hub assigned us, used to
// recognize INF lines describing ourselves.
func (a *ADCAdaptor) SetOwnSID(sid string) {
	a.ownSID = sid
}

func adcEscape(s string) string {
	r := strings.NewReplacer("\\", "\\\\", " ", "\\s", "\n", "\\n")
	return r.Replace(s)
}

func adcUnescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 's':
				b.WriteByte(' ')
				i++
				continue
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// adcField renders a two-letter ADC key plus escaped value.
func adcField(key, value string) string {
	return key + adcEscape(value)
}

func (a *ADCAdaptor) SendInfo(identity Identity) []byte {
	fields := []string{
		"BINF", a.ownSID,
		adcField("NI", identity.Nick),
		adcField("SS", strconv.FormatInt(identity.ShareSize, 10)),
		adcField("SL", strconv.Itoa(identity.SlotsFree)),
	}
	if identity.Operator {
		fields = append(fields, "OP1")
	}
	if identity.Away {
		fields = append(fields, "AW1")
	}
	if identity.Description != "" {
		fields = append(fields, adcField("DE", identity.Description))
	}
	if identity.Email != "" {
		fields = append(fields, adcField("EM", identity.Email))
	}
	return []byte(strings.Join(fields, " ") + "\n")
}

func (a *ADCAdaptor) SendSearch(q SearchQuery) []byte {
	fields := []string{"BSCH", a.ownSID}
	if !q.TTH.IsZero() {
		fields = append(fields, adcField("TR", q.TTH.String()))
	} else {
		for _, term := range strings.Fields(q.Pattern) {
			fields = append(fields, adcField("AN", term))
		}
	}
	if q.SizeMin > 0 {
		fields = append(fields, adcField("GE", strconv.FormatInt(q.SizeMin, 10)))
	}
	if q.SizeMax > 0 {
		fields = append(fields, adcField("LE", strconv.FormatInt(q.SizeMax, 10)))
	}
	if q.FileType != "" {
		fields = append(fields, adcField("TY", q.FileType))
	}
	fields = append(fields, adcField("TO", q.Token))
	return []byte(strings.Join(fields, " ") + "\n")
}

func (a *ADCAdaptor) SendPassword(password string) []byte {
	return []byte("HPAS " + adcEscape(password) + "\n")
}

func (a *ADCAdaptor) SendMessage(text string, thirdPerson bool) []byte {
	fields := []string{"BMSG", a.ownSID, adcEscape(text)}
	if thirdPerson {
		fields = append(fields, "ME1")
	}
	return []byte(strings.Join(fields, " ") + "\n")
}

func (a *ADCAdaptor) ParseLine(line []byte) (Event, error) {
	text := strings.TrimRight(string(line), "\r\n")
	if text == "" {
		return Event{}, fmt.Errorf("adc: empty line")
	}
	tokens := strings.Split(text, " ")
	cmd := tokens[0]
	if len(cmd) < 3 {
		return Event{}, fmt.Errorf("adc: malformed command %q", cmd)
	}
	code := cmd[len(cmd)-3:]
	params := tokens[1:]

	switch code {
	case "SUP":
		return Event{Kind: EventConnect}, nil
	case "SID":
		if len(params) >= 1 {
			a.ownSID = params[0]
		}
		return Event{Kind: EventConnect}, nil
	case "INF":
		return a.parseINF(params)
	case "MSG":
		return a.parseMSG(params, false)
	case "PAS", "GPA":
		return Event{Kind: EventPassword}, nil
	case "SCH":
		return a.parseSCH(params)
	case "CTM":
		return a.parseCTM(params, false)
	case "RCM":
		return a.parseCTM(params, true)
	case "QUI":
		return a.parseQUI(params)
	case "STA":
		return a.parseSTA(params)
	default:
		return Event{Kind: EventConnect}, nil
	}
}

func parseADCFields(params []string) map[string]string {
	fields := make(map[string]string, len(params))
	for _, p := range params {
		if len(p) < 2 {
			continue
		}
		fields[p[:2]] = adcUnescape(p[2:])
	}
	return fields
}

func (a *ADCAdaptor) parseINF(params []string) (Event, error) {
	if len(params) < 1 {
		return Event{}, fmt.Errorf("adc: INF missing SID")
	}
	sid := params[0]
	fields := parseADCFields(params[1:])
	identity := Identity{
		CID:      fields["ID"],
		Nick:     fields["NI"],
		Operator: fields["OP"] == "1",
		Away:     fields["AW"] == "1",
		Email:    fields["EM"],
	}
	if v, err := strconv.ParseInt(fields["SS"], 10, 64); err == nil {
		identity.ShareSize = v
	}
	if v, err := strconv.Atoi(fields["SL"]); err == nil {
		identity.SlotsFree = v
	}
	if sid == a.ownSID {
		return Event{Kind: EventHello, Identity: &identity}, nil
	}
	return Event{Kind: EventUserUpdated, Identity: &identity}, nil
}

func (a *ADCAdaptor) parseMSG(params []string, private bool) (Event, error) {
	if len(params) < 2 {
		return Event{}, fmt.Errorf("adc: MSG missing text")
	}
	fields := parseADCFields(params[2:])
	kind := EventChatMessage
	if private {
		kind = EventPrivateMessage
	}
	return Event{
		Kind: kind,
		Chat: &ChatMessage{
			From:        Identity{CID: params[0]},
			Text:        adcUnescape(params[1]),
			ThirdPerson: fields["ME"] == "1",
		},
	}, nil
}

func (a *ADCAdaptor) parseSCH(params []string) (Event, error) {
	if len(params) < 1 {
		return Event{}, fmt.Errorf("adc: SCH missing source")
	}
	fields := parseADCFields(params[1:])
	q := SearchQuery{
		Pattern:  fields["AN"],
		FileType: fields["TY"],
		Token:    fields["TO"],
	}
	if v, err := strconv.ParseInt(fields["GE"], 10, 64); err == nil {
		q.SizeMin = v
	}
	if v, err := strconv.ParseInt(fields["LE"], 10, 64); err == nil {
		q.SizeMax = v
	}
	if tr, ok := fields["TR"]; ok {
		if sum, err := tth.ParseSum(tr); err == nil {
			q.TTH = sum
		}
	}
	return Event{Kind: EventSearch, Search: &q}, nil
}

func (a *ADCAdaptor) parseCTM(params []string, reverse bool) (Event, error) {
	if len(params) < 2 {
		return Event{}, fmt.Errorf("adc: CTM missing parameters")
	}
	fields := parseADCFields(params[2:])
	port, _ := strconv.Atoi(fields["PO"])
	return Event{
		Kind: EventCTM,
		CTM: &CTMRequest{
			Port:    port,
			Token:   fields["TO"],
			Reverse: reverse,
			User:    &Identity{CID: params[0]},
		},
	}, nil
}

func (a *ADCAdaptor) parseQUI(params []string) (Event, error) {
	if len(params) < 1 {
		return Event{}, fmt.Errorf("adc: QUI missing SID")
	}
	fields := parseADCFields(params[1:])
	if rd, ok := fields["RD"]; ok {
		return Event{Kind: EventRedirect, RedirectURL: rd}, nil
	}
	return Event{Kind: EventUserQuit, ShortID: params[0]}, nil
}

func (a *ADCAdaptor) parseSTA(params []string) (Event, error) {
	if len(params) < 2 {
		return Event{Kind: EventFailed, FailReason: "unknown status"}, nil
	}
	if strings.HasPrefix(params[0], "2") {
		return Event{Kind: EventFailed, FailReason: adcUnescape(params[1])}, nil
	}
	return Event{Kind: EventConnect}, nil
}
