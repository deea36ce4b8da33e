package event

type Name string

const (
	KeyGenerated Name = "KeyGenerated"
	KeyImported  Name = "KeyImported"
)

func (n Name) String() string {
	return string(n)
}
