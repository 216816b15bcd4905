package geo

import "time"

// Russia страна, для которой поиск идёт по региону получателя.
const Russia = "Россия"

type Country struct {
	ID        int64
	Name      string
	UTCOffset int // часы
}

type City struct {
	ID        int64
	CountryID int64
	Name      string
	Region    string
	UTCOffset int
}

// ToUTC переводит местное время с заданным смещением в UTC.
func ToUTC(local time.Time, offsetHours int) time.Time {
	return local.Add(-time.Duration(offsetHours) * time.Hour)
}
