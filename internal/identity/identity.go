// Package identity derives the pseudonymous identities shown in the community.
//
// A pseudonym is a pure function of the internal user id and the service secret.
// Nothing here is persisted; every response boundary derives identities again.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"golang.org/x/crypto/hkdf"
)

const (
	seedPrefix = "community_anonymous_"
	idPrefix   = "community_id_"

	// AnonymousIDLen 匿名 ID 长度（hex 字符）
	AnonymousIDLen = 16
	chatRefLen     = 32
)

// Kind 仅作标记，不参与派生：一个用户在全站只有一个化名
type Kind string

const (
	KindPost     Kind = "post"
	KindComment  Kind = "comment"
	KindReaction Kind = "reaction"
	KindProfile  Kind = "profile"
	KindFollow   Kind = "follow"
)

var firstNames = [...]string{
	"Mindful", "Peaceful", "Calm", "Serene", "Gentle", "Kind", "Brave", "Strong",
	"Wise", "Caring", "Hopeful", "Bright", "Warm", "Quiet", "Grace", "Light",
	"Dawn", "Bloom", "River", "Ocean", "Forest", "Sky", "Moon", "Star",
	"Phoenix", "Harmony", "Journey", "Spirit", "Dream", "Wonder", "Faith", "Trust",
	"Balance", "Clarity", "Focus", "Energy", "Vibrant", "Radiant", "Golden", "Silver",
	"Azure", "Emerald", "Crimson", "Violet", "Amber", "Pearl", "Ruby", "Sapphire",
}

var lastNames = [...]string{
	"Walker", "Seeker", "Dreamer", "Warrior", "Guardian", "Helper", "Listener", "Healer",
	"Builder", "Creator", "Explorer", "Traveler", "Wanderer", "Keeper", "Finder", "Giver",
	"Sharer", "Learner", "Teacher", "Student", "Friend", "Companion", "Guide", "Mentor",
	"Soul", "Heart", "Mind", "Spirit", "Being", "Voice", "Path", "Bridge",
	"Mountain", "Valley", "River", "Ocean", "Forest", "Garden", "Meadow", "Field",
	"Sunrise", "Sunset", "Rainbow", "Storm", "Breeze", "Wind", "Rain", "Snow",
}

var avatarColors = [...]string{
	"#6366f1", "#8b5cf6", "#a855f7", "#d946ef", "#ec4899", "#f43f5e",
	"#ef4444", "#f97316", "#f59e0b", "#eab308", "#84cc16", "#22c55e",
	"#10b981", "#14b8a6", "#06b6d4", "#0ea5e9", "#3b82f6", "#6366f1",
}

// Pseudonym 对外展示的匿名身份
type Pseudonym struct {
	AnonymousID string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarColor string `json:"avatarColor"`
}

// Deriver 持有服务密钥，可并发使用
type Deriver struct {
	secret     string
	chatRefKey []byte
}

// NewDeriver 创建派生器；secret 不能为空
func NewDeriver(secret string) (*Deriver, error) {
	if secret == "" {
		return nil, fmt.Errorf("identity: empty secret")
	}
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte("chat-pair-ref")), key); err != nil {
		return nil, fmt.Errorf("identity: expand chat ref key: %w", err)
	}
	return &Deriver{secret: secret, chatRefKey: key}, nil
}

// Derive 计算 userID 的化名。userID 不能为空，调用方负责保证。
func (d *Deriver) Derive(userID string, _ Kind) Pseudonym {
	seed := sha256Hex(seedPrefix + userID + "_" + d.secret)

	return Pseudonym{
		AnonymousID: sha256Hex(idPrefix + userID + "_" + seed)[:AnonymousIDLen],
		DisplayName: firstNames[window(seed, 0)%uint32(len(firstNames))] + " " +
			lastNames[window(seed, 1)%uint32(len(lastNames))],
		AvatarColor: avatarColors[window(seed, 2)%uint32(len(avatarColors))],
	}
}

// AnonymousID 只取匿名 ID，反查扫描时使用
func (d *Deriver) AnonymousID(userID string) string {
	return d.Derive(userID, KindProfile).AnonymousID
}

// ChatRef 为一对用户生成对称的不透明引用，双方得到同一个值，供聊天子系统作房间键
func (d *Deriver) ChatRef(a, b string) string {
	if b < a {
		a, b = b, a
	}
	mac := hmac.New(sha256.New, d.chatRefKey)
	mac.Write([]byte(a))
	mac.Write([]byte{0})
	mac.Write([]byte(b))
	return hex.EncodeToString(mac.Sum(nil))[:chatRefLen]
}

// Window 轮换周期
type Window string

const (
	Daily   Window = "daily"
	Weekly  Window = "weekly"
	Monthly Window = "monthly"
)

// TimeBoundPseudonym 生成按周期轮换的展示名，不影响 AnonymousID
func (d *Deriver) TimeBoundPseudonym(userID string, w Window, now time.Time) string {
	now = now.UTC()
	var period string
	switch w {
	case Daily:
		period = now.Format("2006-01-02")
	case Monthly:
		period = now.Format("2006-01")
	default:
		year, week := now.ISOWeek()
		period = fmt.Sprintf("%d-W%02d", year, week)
	}
	h := sha256Hex(userID + "_" + period + "_" + d.secret)
	return firstNames[window(h, 0)%uint32(len(firstNames))] + " " +
		lastNames[window(h, 1)%uint32(len(lastNames))]
}

// ValidAnonymousID 16 位小写 hex
func ValidAnonymousID(s string) bool {
	if len(s) != AnonymousIDLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// window 取 hex 摘要第 i 个 8 字符窗口（4 字节）
func window(hexDigest string, i int) uint32 {
	v, _ := strconv.ParseUint(hexDigest[i*8:(i+1)*8], 16, 32)
	return uint32(v)
}
