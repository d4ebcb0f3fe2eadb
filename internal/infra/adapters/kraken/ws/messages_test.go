package ws

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeClassifiesFrames(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want func(t *testing.T, msg Message)
	}{
		{
			name: "pong",
			raw:  `{"method":"pong","req_id":7,"time_in":"2024-05-19T16:30:00Z","time_out":"2024-05-19T16:30:00Z"}`,
			want: func(t *testing.T, msg Message) {
				require.Equal(t, Pong{ReqID: 7}, msg)
			},
		},
		{
			name: "heartbeat",
			raw:  `{"channel":"heartbeat"}`,
			want: func(t *testing.T, msg Message) {
				require.Equal(t, Heartbeat{}, msg)
			},
		},
		{
			name: "ack",
			raw:  `{"method":"subscribe","req_id":3,"result":{"channel":"book","symbol":"BTC/USD","depth":10,"snapshot":true},"success":true}`,
			want: func(t *testing.T, msg Message) {
				resp, ok := msg.(MethodResponse)
				require.True(t, ok)
				require.True(t, resp.Success)
				require.Equal(t, int64(3), resp.ReqID)
				require.Equal(t, "book", resp.Result.Channel)
				require.Equal(t, "BTC/USD", resp.Result.Symbol)
			},
		},
		{
			name: "error ack",
			raw:  `{"error":"Already subscribed","method":"subscribe","req_id":4,"success":false,"symbol":"ETH/USD"}`,
			want: func(t *testing.T, msg Message) {
				resp, ok := msg.(MethodResponse)
				require.True(t, ok)
				require.False(t, resp.Success)
				require.Equal(t, "Already subscribed", resp.Error)
				require.Equal(t, "ETH/USD", resp.Symbol)
			},
		},
		{
			name: "status",
			raw:  `{"channel":"status","type":"update","data":[{"api_version":"v2","connection_id":3,"system":"maintenance","version":"2.0.0"}]}`,
			want: func(t *testing.T, msg Message) {
				st, ok := msg.(StatusMessage)
				require.True(t, ok)
				require.Len(t, st.Data, 1)
				require.Equal(t, "maintenance", st.Data[0].System)
			},
		},
		{
			name: "channel data",
			raw:  `{"channel":"book","type":"update","data":[{"symbol":"BTC/USD","bids":[],"asks":[{"price":66732.5,"qty":5.48256063}],"checksum":2855135483,"timestamp":"2024-05-19T16:32:26.777454Z"}]}`,
			want: func(t *testing.T, msg Message) {
				ch, ok := msg.(ChannelMessage)
				require.True(t, ok)
				require.Equal(t, "book", ch.Channel)
				require.Equal(t, "update", ch.Type)
				require.Contains(t, string(ch.Data), "2855135483")
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Decode([]byte(tc.raw))
			require.NoError(t, err)
			tc.want(t, msg)
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte(`{"channel":`))
	require.Error(t, err)
	_, err = Decode([]byte(`{"foo":"bar"}`))
	require.ErrorIs(t, err, errUnknownFrame)
}
