package hub

import (
	"fmt"
	"strconv"
	"strings"
)

// NMDCAdaptor implements ProtocolAdaptor for the legacy dollar-prefixed,
// pipe-terminated NMDC hub protocol. Wire bytes are assumed already
// transcoded to UTF-8 by the caller; this adaptor only parses structure.
type NMDCAdaptor struct {
	ownNick string
}

// NewNMDCAdaptor returns an adaptor that identifies our own $MyINFO
// updates by comparing against ownNick.
func NewNMDCAdaptor(ownNick string) *NMDCAdaptor {
	return &NMDCAdaptor{ownNick: ownNick}
}

func nmdcEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "|", "&#124;", "$", "&#36;")
	return r.Replace(s)
}

func nmdcUnescape(s string) string {
	r := strings.NewReplacer("&#124;", "|", "&#36;", "$", "&amp;", "&")
	return r.Replace(s)
}

func (a *NMDCAdaptor) SendInfo(identity Identity) []byte {
	mode := "A"
	flag := byte('1')
	if identity.Away {
		flag = '3'
	}
	info := fmt.Sprintf("$MyINFO $ALL %s %s<dcwire V:1.0,M:%s,H:1/0/0,S:%d>$ $%c$%s$%d$|",
		identity.Nick,
		nmdcEscape(identity.Description),
		mode,
		identity.SlotsFree,
		flag,
		nmdcEscape(identity.Email),
		identity.ShareSize,
	)
	return []byte(info)
}

func (a *NMDCAdaptor) SendSearch(q SearchQuery) []byte {
	sizeMode := "F"
	size := int64(0)
	switch {
	case q.SizeMax > 0:
		sizeMode = "T"
		size = q.SizeMax
	case q.SizeMin > 0:
		sizeMode = "F"
		size = q.SizeMin
	}
	pattern := strings.ReplaceAll(q.Pattern, " ", "$")
	fileType := "1"
	if q.FileType != "" {
		fileType = q.FileType
	}
	return []byte(fmt.Sprintf("$Search Hub:%s %s?%d?%s?%s|", a.ownNick, sizeMode, size, fileType, pattern))
}

func (a *NMDCAdaptor) SendPassword(password string) []byte {
	return []byte("$MyPass " + nmdcEscape(password) + "|")
}

func (a *NMDCAdaptor) SendMessage(text string, thirdPerson bool) []byte {
	if thirdPerson {
		return []byte(fmt.Sprintf("<%s> /me %s|", a.ownNick, nmdcEscape(text)))
	}
	return []byte(fmt.Sprintf("<%s> %s|", a.ownNick, nmdcEscape(text)))
}

func (a *NMDCAdaptor) ParseLine(line []byte) (Event, error) {
	text := strings.TrimRight(string(line), "|\r\n")
	if text == "" {
		return Event{}, fmt.Errorf("nmdc: empty line")
	}

	switch {
	case strings.HasPrefix(text, "$Lock"):
		return Event{Kind: EventConnect}, nil
	case strings.HasPrefix(text, "$GetPass"):
		return Event{Kind: EventPassword}, nil
	case strings.HasPrefix(text, "$MyINFO"):
		return a.parseMyINFO(text)
	case strings.HasPrefix(text, "$Quit "):
		return Event{Kind: EventUserQuit, ShortID: strings.TrimPrefix(text, "$Quit ")}, nil
	case strings.HasPrefix(text, "$ForceMove "):
		return Event{Kind: EventRedirect, RedirectURL: strings.TrimPrefix(text, "$ForceMove ")}, nil
	case strings.HasPrefix(text, "$Search "):
		return a.parseSearch(text)
	case strings.HasPrefix(text, "$ConnectToMe "):
		return a.parseConnectToMe(text)
	case strings.HasPrefix(text, "$RevConnectToMe "):
		return a.parseRevConnectToMe(text)
	case strings.HasPrefix(text, "<"):
		return a.parseChat(text)
	case strings.HasPrefix(text, "$To: "):
		return a.parsePrivateMessage(text)
	default:
		return Event{Kind: EventConnect}, nil
	}
}

// parseMyINFO decodes the $ALL form:
// $MyINFO $ALL nick description<tag>$ $flag speed$email$size$
func (a *NMDCAdaptor) parseMyINFO(text string) (Event, error) {
	rest := strings.TrimPrefix(text, "$MyINFO $ALL ")
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) != 2 {
		return Event{}, fmt.Errorf("nmdc: malformed $MyINFO")
	}
	nick := parts[0]
	fields := strings.Split(parts[1], "$")
	identity := Identity{Nick: nick}
	if len(fields) > 0 {
		identity.Description = nmdcUnescape(strings.TrimSuffix(fields[0], " "))
	}
	if len(fields) > 2 && len(fields[2]) > 0 {
		identity.Away = fields[2][0] == '3'
	}
	if len(fields) > 3 {
		identity.Email = nmdcUnescape(fields[3])
	}
	if len(fields) > 4 {
		if v, err := strconv.ParseInt(fields[4], 10, 64); err == nil {
			identity.ShareSize = v
		}
	}
	if nick == a.ownNick {
		return Event{Kind: EventHello, Identity: &identity}, nil
	}
	return Event{Kind: EventUserUpdated, Identity: &identity}, nil
}

func (a *NMDCAdaptor) parseSearch(text string) (Event, error) {
	rest := strings.TrimPrefix(text, "$Search ")
	spaceIdx := strings.IndexByte(rest, ' ')
	if spaceIdx < 0 {
		return Event{}, fmt.Errorf("nmdc: malformed $Search")
	}
	criteria := rest[spaceIdx+1:]
	fields := strings.Split(criteria, "?")
	if len(fields) < 4 {
		return Event{}, fmt.Errorf("nmdc: malformed $Search criteria")
	}
	q := SearchQuery{
		FileType: fields[2],
		Pattern:  strings.ReplaceAll(fields[len(fields)-1], "$", " "),
	}
	if size, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
		if fields[0] == "T" {
			q.SizeMax = size
		} else {
			q.SizeMin = size
		}
	}
	return Event{Kind: EventSearch, Search: &q}, nil
}

func (a *NMDCAdaptor) parseConnectToMe(text string) (Event, error) {
	rest := strings.TrimPrefix(text, "$ConnectToMe ")
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) != 2 {
		return Event{}, fmt.Errorf("nmdc: malformed $ConnectToMe")
	}
	hostPort := strings.Split(parts[1], ":")
	if len(hostPort) != 2 {
		return Event{}, fmt.Errorf("nmdc: malformed $ConnectToMe address")
	}
	port, _ := strconv.Atoi(hostPort[1])
	return Event{
		Kind: EventCTM,
		CTM: &CTMRequest{
			TargetIP: hostPort[0],
			Port:     port,
			User:     &Identity{Nick: parts[0]},
		},
	}, nil
}

func (a *NMDCAdaptor) parseRevConnectToMe(text string) (Event, error) {
	rest := strings.TrimPrefix(text, "$RevConnectToMe ")
	parts := strings.SplitN(rest, " ", 2)
	if len(parts) != 2 {
		return Event{}, fmt.Errorf("nmdc: malformed $RevConnectToMe")
	}
	return Event{
		Kind: EventCTM,
		CTM: &CTMRequest{
			Reverse: true,
			User:    &Identity{Nick: parts[0]},
		},
	}, nil
}

func (a *NMDCAdaptor) parseChat(text string) (Event, error) {
	closeIdx := strings.IndexByte(text, '>')
	if closeIdx < 0 {
		return Event{}, fmt.Errorf("nmdc: malformed chat line")
	}
	nick := text[1:closeIdx]
	msg := strings.TrimPrefix(text[closeIdx+1:], " ")
	thirdPerson := strings.HasPrefix(msg, "/me ")
	if thirdPerson {
		msg = strings.TrimPrefix(msg, "/me ")
	}
	return Event{
		Kind: EventChatMessage,
		Chat: &ChatMessage{
			From:        Identity{Nick: nick},
			Text:        nmdcUnescape(msg),
			ThirdPerson: thirdPerson,
		},
	}, nil
}

func (a *NMDCAdaptor) parsePrivateMessage(text string) (Event, error) {
	rest := strings.TrimPrefix(text, "$To: ")
	fromIdx := strings.Index(rest, "From: ")
	if fromIdx < 0 {
		return Event{}, fmt.Errorf("nmdc: malformed $To")
	}
	afterFrom := rest[fromIdx+len("From: "):]
	spaceIdx := strings.IndexByte(afterFrom, ' ')
	if spaceIdx < 0 {
		return Event{}, fmt.Errorf("nmdc: malformed $To sender")
	}
	nick := afterFrom[:spaceIdx]
	dollarIdx := strings.IndexByte(afterFrom, '$')
	if dollarIdx < 0 {
		return Event{}, fmt.Errorf("nmdc: malformed $To body")
	}
	body := afterFrom[dollarIdx+1:]
	closeIdx := strings.IndexByte(body, '>')
	if closeIdx >= 0 {
		body = body[closeIdx+1:]
	}
	return Event{
		Kind: EventPrivateMessage,
		Chat: &ChatMessage{
			From: Identity{Nick: nick},
			Text: nmdcUnescape(strings.TrimPrefix(body, " ")),
		},
	}, nil
}
