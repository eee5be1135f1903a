package archive

type Room struct {
	Code      string  `redis:"code"`
	Name      *string `redis:"name"`
	HostID    string  `redis:"host_id"`
	MediaURL  string  `redis:"media_url"`
	Mode      string  `redis:"mode"`
	Members   int     `redis:"members"`
	Messages  int     `redis:"messages"`
	Reason    string  `redis:"reason"`
	CreatedAt int64   `redis:"created_at"`
	ClosedAt  int64   `redis:"closed_at"`
}
