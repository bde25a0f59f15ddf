package hashalgo

import "testing"

func TestU_HashAlgo_Valid(t *testing.T) {
	if !SHA256.Valid() {
		t.Error("SHA256 should be valid")
	}
	if HashAlgo(0).Valid() {
		t.Error("zero value should not be valid")
	}
	if HashAlgo(99).Valid() {
		t.Error("out-of-range value should not be valid")
	}
}

func TestU_HashAlgo_Length(t *testing.T) {
	cases := map[HashAlgo]int{
		SHA1:     20,
		SHA256:   32,
		SHA384:   48,
		SHA512:   64,
		SHA3_256: 32,
	}
	for algo, want := range cases {
		if got := algo.Length(); got != want {
			t.Errorf("%s.Length() = %d, want %d", algo, got, want)
		}
	}
}

func TestU_HashAlgo_New_ProducesCorrectLength(t *testing.T) {
	for _, algo := range All() {
		h := algo.New()
		h.Write([]byte("test"))
		sum := h.Sum(nil)
		if len(sum) != algo.Length() {
			t.Errorf("%s: digest length = %d, want %d", algo, len(sum), algo.Length())
		}
	}
}

func TestU_HashAlgo_Base64Hash_KnownVector(t *testing.T) {
	// SHA-256("") = e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855
	// base64(that digest) below, verified against the standard test vector.
	got := SHA256.Base64Hash(nil)
	want := "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU="
	if got != want {
		t.Errorf("Base64Hash(nil) = %q, want %q", got, want)
	}
}

func TestU_HashAlgo_OID_Distinct(t *testing.T) {
	seen := make(map[string]HashAlgo)
	for _, algo := range All() {
		oid := algo.OID().String()
		if other, ok := seen[oid]; ok {
			t.Errorf("%s and %s share OID %s", algo, other, oid)
		}
		seen[oid] = algo
	}
}

func TestU_Parse_CaseAndSeparatorInsensitive(t *testing.T) {
	cases := []string{"sha-256", "SHA256", "sha_256", "Sha-256"}
	for _, name := range cases {
		algo, err := Parse(name)
		if err != nil {
			t.Errorf("Parse(%q) error = %v", name, err)
			continue
		}
		if algo != SHA256 {
			t.Errorf("Parse(%q) = %v, want SHA256", name, algo)
		}
	}
}

func TestU_Parse_UnknownName(t *testing.T) {
	if _, err := Parse("md5"); err == nil {
		t.Error("Parse(\"md5\") should fail: not a supported variant")
	}
}

func TestU_HashAlgo_String_UnknownValue(t *testing.T) {
	got := HashAlgo(42).String()
	want := "HashAlgo(42)"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
