package main

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hangsync/hang/internal/inviteurl"
)

// indexPage is the service's bare landing response for GET /. It carries
// no room state; it only confirms the coordinator is reachable and
// points a human visitor at the client app.
const indexPage = `<!DOCTYPE html>
<html>
<head><title>Hang</title></head>
<body>
<h1>Hang Room Coordination Service</h1>
<p>This is a websocket rendezvous point for the Hang client. It has nothing to show you directly &mdash; open an invite link in the Hang app instead.</p>
</body>
</html>
`

var joinPageTmpl = template.Must(template.New("join").Parse(`<!DOCTYPE html>
<html>
<head><title>Join a Hang room</title></head>
<body>
{{if .DeepLink}}
<p>Opening Hang&hellip;</p>
<script>window.location.replace({{.DeepLink}});</script>
<p>If nothing happens, <a href="{{.DeepLink}}">click here to open Hang</a>.</p>
{{else}}
<p>This invite link is missing a room code. Ask the host to resend it.</p>
{{end}}
</body>
</html>
`))

// handleIndex serves the base landing page at GET /.
func handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexPage))
}

// handleJoinLanding serves GET /join and GET /join/:room_id: an HTML page
// that redirects into the client's custom URL scheme, carrying whatever
// room/code/file hints were supplied via path or query parameters.
func handleJoinLanding(c *gin.Context) {
	room := strings.TrimSpace(c.Param("room_id"))
	if room == "" {
		room = strings.TrimSpace(c.Query("room"))
	}

	var deepLink string
	if room != "" {
		deepLink = inviteurl.Encode(inviteurl.Invite{
			Room: room,
			Code: c.Query("code"),
			File: c.Query("file"),
		})
	}

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	_ = joinPageTmpl.Execute(c.Writer, struct{ DeepLink string }{DeepLink: deepLink})
}
